// Package codec provides versioned encoding/decoding for wire and
// storage values. CBOR is the production codec: compact, used for
// certificates, blocks and blobs, and for anything hashed for content
// identity. JSON is kept for human-readable config and debug dumps.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CodecVersion represents the codec version.
type CodecVersion uint16

const (
	// CurrentVersion is the current codec version.
	CurrentVersion CodecVersion = 0
)

// Interface is satisfied by every codec in this package.
type Interface interface {
	Marshal(version CodecVersion, v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) (CodecVersion, error)
}

// Codec is the legacy JSON codec, kept for config/debug call sites that
// predate the CBOR codec.
var Codec = &JSONCodec{}

// CBOR is the production codec used for certificates, blocks, blobs and
// anything else that crosses the worker/client RPC boundary or feeds
// content-addressed hashing.
var CBOR Interface = &CBORCodec{}

// JSON is the human-readable codec for config files and debug dumps.
var JSON Interface = &JSONCodec{}

// JSONCodec implements JSON encoding/decoding.
type JSONCodec struct{}

// Marshal marshals an object to bytes.
func (c *JSONCodec) Marshal(version CodecVersion, v interface{}) ([]byte, error) {
	if version != CurrentVersion {
		return nil, fmt.Errorf("unsupported codec version: %d", version)
	}
	return json.Marshal(v)
}

// Unmarshal unmarshals bytes to an object.
func (c *JSONCodec) Unmarshal(data []byte, v interface{}) (CodecVersion, error) {
	err := json.Unmarshal(data, v)
	return CurrentVersion, err
}

// cborEncMode is canonical (RFC 8949 core deterministic encoding): map
// keys are sorted, so two structurally-equal values always produce
// identical bytes. Required because this codec backs content hashing.
var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("codec: invalid cbor canonical encoding options: " + err.Error())
	}
	return mode
}()

// CBORCodec implements CBOR encoding/decoding.
type CBORCodec struct{}

// Marshal marshals an object to canonical CBOR bytes.
func (c *CBORCodec) Marshal(version CodecVersion, v interface{}) ([]byte, error) {
	if version != CurrentVersion {
		return nil, fmt.Errorf("unsupported codec version: %d", version)
	}
	return cborEncMode.Marshal(v)
}

// Unmarshal unmarshals CBOR bytes to an object.
func (c *CBORCodec) Unmarshal(data []byte, v interface{}) (CodecVersion, error) {
	if err := cbor.Unmarshal(data, v); err != nil {
		return 0, err
	}
	return CurrentVersion, nil
}

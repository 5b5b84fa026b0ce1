package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeChunk serializes a chunk into a freshly allocated buffer. Each send
// owns its buffer, so the sender may overwrite the source slot right after
// the call returns.
func EncodeChunk(c Chunk) ([]byte, error) {
	data, err := msgpack.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("encode chunk %s: %w", c, err)
	}
	return data, nil
}

// DecodeChunk parses a chunk payload.
func DecodeChunk(data []byte) (Chunk, error) {
	var c Chunk
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return Chunk{}, fmt.Errorf("decode chunk: %w", err)
	}
	return c, nil
}

// EncodeValue serializes a single real.
func EncodeValue(v float64) ([]byte, error) {
	data, err := msgpack.Marshal(&Value{Value: v})
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}

// DecodeValue parses a value payload.
func DecodeValue(data []byte) (float64, error) {
	var v Value
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("decode value: %w", err)
	}
	return v.Value, nil
}

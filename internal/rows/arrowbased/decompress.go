package arrowbased

import (
	"bytes"

	"github.com/pierrec/lz4/v4"
)

// Decompressor turns the downloaded bytes of a link into an arrow IPC stream.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// NewDecompressor returns the decompressor matching the negotiated compression.
func NewDecompressor(useLz4Compression bool) Decompressor {
	if useLz4Compression {
		return lz4Decompressor{}
	}
	return noopDecompressor{}
}

type lz4Decompressor struct{}

var _ Decompressor = lz4Decompressor{}

// Decompress reads a complete lz4 frame stream.
func (lz4Decompressor) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	var buf bytes.Buffer
	buf.Grow(len(data) * 2)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

type noopDecompressor struct{}

var _ Decompressor = noopDecompressor{}

func (noopDecompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

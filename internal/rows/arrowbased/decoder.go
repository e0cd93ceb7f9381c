package arrowbased

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/ipc"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/pkg/errors"
)

var errSchemaMismatch = errors.New("arrow schema does not match the declared schema")

// Decoder produces the record batches held in one buffer.
type Decoder interface {
	// Next returns the next record. The caller must Release it.
	// io.EOF is returned once the buffer is exhausted.
	Next() (arrow.Record, error)

	// Schema is the schema of the stream.
	Schema() *arrow.Schema

	// Release frees the resources held by the decoder. Safe to call more than once.
	Release()
}

// NewDecoder opens an arrow IPC stream held in data. The stream's schema must be
// compatible with schema: same column names and types in the same order.
// A nil schema accepts any stream.
func NewDecoder(schema *arrow.Schema, data []byte, mem memory.Allocator) (Decoder, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	rdr, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}

	if schema != nil && !schemaCompatible(schema, rdr.Schema()) {
		rdr.Release()
		return nil, errors.Wrapf(errSchemaMismatch, "got %s, want %s", rdr.Schema(), schema)
	}

	return &ipcDecoder{rdr: rdr, schema: rdr.Schema()}, nil
}

type ipcDecoder struct {
	rdr    *ipc.Reader
	schema *arrow.Schema
}

var _ Decoder = (*ipcDecoder)(nil)

func (d *ipcDecoder) Next() (arrow.Record, error) {
	if d.rdr == nil {
		return nil, io.EOF
	}

	if d.rdr.Next() {
		r := d.rdr.Record()
		// the ipc reader releases its current record on the next call to Next
		r.Retain()
		return r, nil
	}

	if err := d.rdr.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

func (d *ipcDecoder) Schema() *arrow.Schema {
	return d.schema
}

func (d *ipcDecoder) Release() {
	if d.rdr != nil {
		d.rdr.Release()
		d.rdr = nil
	}
}

func schemaCompatible(want, got *arrow.Schema) bool {
	wfs, gfs := want.Fields(), got.Fields()
	if len(wfs) != len(gfs) {
		return false
	}

	for i, wf := range wfs {
		gf := gfs[i]
		if wf.Name != gf.Name || !arrow.TypeEqual(wf.Type, gf.Type) {
			return false
		}
	}

	return true
}

func describeSchema(s *arrow.Schema) string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d columns", len(s.Fields()))
}

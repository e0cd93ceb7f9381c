package arrowbased

import (
	"io"
	"testing"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder(t *testing.T) {

	t.Run("decodes every record in order", func(t *testing.T) {
		mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
		defer mem.AssertSize(t, 0)

		data := generateArrowBytes(t, testSchema, 10, 25, 10)
		dec, err := NewDecoder(testSchema, data, mem)
		require.NoError(t, err)
		defer dec.Release()

		var sizes []int64
		var first []int64
		for {
			rec, err := dec.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			sizes = append(sizes, rec.NumRows())
			first = append(first, rec.Column(0).(*array.Int64).Value(0))
			rec.Release()
		}

		assert.Equal(t, []int64{10, 10, 5}, sizes)
		assert.Equal(t, []int64{10, 20, 30}, first)

		// exhausted decoders keep returning EOF
		_, err = dec.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("records outlive the next call", func(t *testing.T) {
		data := generateArrowBytes(t, testSchema, 0, 4, 2)
		dec, err := NewDecoder(testSchema, data, nil)
		require.NoError(t, err)
		defer dec.Release()

		r1, err := dec.Next()
		require.NoError(t, err)
		r2, err := dec.Next()
		require.NoError(t, err)

		assert.Equal(t, int64(0), r1.Column(0).(*array.Int64).Value(0))
		assert.Equal(t, "row-1", r1.Column(1).(*array.String).Value(1))
		assert.Equal(t, int64(2), r2.Column(0).(*array.Int64).Value(0))
		r1.Release()
		r2.Release()
	})

	t.Run("release is idempotent", func(t *testing.T) {
		dec, err := NewDecoder(testSchema, generateArrowBytes(t, testSchema, 0, 1, 1), nil)
		require.NoError(t, err)
		dec.Release()
		dec.Release()
		_, err = dec.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("rejects a different schema", func(t *testing.T) {
		renamed := arrow.NewSchema([]arrow.Field{
			{Name: "key", Type: arrow.PrimitiveTypes.Int64},
			{Name: "name", Type: arrow.BinaryTypes.String},
		}, nil)
		_, err := NewDecoder(renamed, generateArrowBytes(t, testSchema, 0, 1, 1), nil)
		assert.True(t, errors.Is(err, errSchemaMismatch))

		retyped := arrow.NewSchema([]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int32},
			{Name: "name", Type: arrow.BinaryTypes.String},
		}, nil)
		_, err = NewDecoder(retyped, generateArrowBytes(t, testSchema, 0, 1, 1), nil)
		assert.True(t, errors.Is(err, errSchemaMismatch))
	})

	t.Run("rejects bytes that are not an ipc stream", func(t *testing.T) {
		_, err := NewDecoder(testSchema, []byte("not arrow"), nil)
		assert.Error(t, err)

		_, err = NewDecoder(testSchema, nil, nil)
		assert.Error(t, err)
	})
}

func TestSchemaCompatible(t *testing.T) {
	withMeta := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	assert.True(t, schemaCompatible(testSchema, withMeta))

	short := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)
	assert.False(t, schemaCompatible(testSchema, short))
	assert.Equal(t, "2 columns", describeSchema(testSchema))
	assert.Equal(t, "<nil>", describeSchema(nil))
}

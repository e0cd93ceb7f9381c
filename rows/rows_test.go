package rows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPage(t *testing.T) {
	t.Run("watermark is the end of the last link", func(t *testing.T) {
		p := &Page{Links: []Link{
			{URL: "a", RowOffset: 0, RowCount: 100},
			{URL: "b", RowOffset: 100, RowCount: 50},
		}}
		assert.Equal(t, int64(150), p.Watermark())
		assert.Equal(t, int64(150), p.RowCount())
	})

	t.Run("empty and nil pages", func(t *testing.T) {
		var p *Page
		assert.Zero(t, p.Watermark())
		assert.Zero(t, p.RowCount())
		assert.Zero(t, (&Page{HasMore: true}).Watermark())
	})
}

func TestPageSourceFunc(t *testing.T) {
	var got int64 = -1
	var src PageSource = PageSourceFunc(func(ctx context.Context, watermark int64) (*Page, error) {
		got = watermark
		return &Page{}, nil
	})

	p, err := src.FetchNext(context.Background(), 42)
	assert.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, int64(42), got)
}

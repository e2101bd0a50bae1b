package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoopen-extract/internal/models"
)

func TestLoadPDF_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not a pdf", data: []byte("hello world, this is plain text")},
		{name: "truncated header", data: []byte("%PDF-1.4\n%garbage")},
		{name: "random bytes", data: []byte{0x25, 0x50, 0x44, 0x46, 0x2d, 0x00, 0xff, 0xfe, 0x10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := LoadPDF(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidDocument)
			assert.Nil(t, pages)
		})
	}
}

func TestPDFLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := PDFLoader{}.Load(ctx, []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTextLoader(t *testing.T) {
	pages, err := TextLoader{}.Load(context.Background(), []byte("page one\fpage two"))
	require.NoError(t, err)
	assert.Equal(t, []string{"page one", "page two"}, pages)

	_, err = TextLoader{}.Load(context.Background(), []byte("   \n"))
	assert.ErrorIs(t, err, models.ErrInvalidDocument)
}

package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRenderFirstPage_ErrorPaths(t *testing.T) {
	r := NewRenderer(zap.NewNop())

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "nil input", input: nil, wantErr: ErrEmptyInput},
		{name: "empty input", input: []byte{}, wantErr: ErrEmptyInput},
		{name: "png bytes", input: []byte("\x89PNG\r\n\x1a\n"), wantErr: ErrInvalidFormat},
		{name: "plain text", input: []byte("hello world"), wantErr: ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RenderFirstPage(tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7 ...")))
	assert.False(t, IsPDF([]byte("%PDX-1.7")))
	assert.False(t, IsPDF(nil))
}

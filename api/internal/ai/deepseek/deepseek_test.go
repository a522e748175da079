package deepseek

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"truewater/api/internal/ai"
	"truewater/api/internal/sample"
)

var _ ai.Engine = (*Engine)(nil)

func TestDeepseekIsTextOnly(t *testing.T) {
	e := New("k", "deepseek-chat")
	assert.Equal(t, "deepseek", e.Name())
	assert.Equal(t, "deepseek-chat", e.GetModel())

	_, err := e.Classify(context.Background(), []byte{1}, "image/png")
	assert.ErrorIs(t, err, sample.ErrClassifierUnavailable)
}

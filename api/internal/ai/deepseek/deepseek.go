package deepseek

import (
	"context"
	"fmt"

	"truewater/api/internal/ai/openai"
	"truewater/api/internal/sample"
)

const BaseURL = "https://api.deepseek.com/v1"

// Engine speaks the OpenAI chat protocol but has no vision input, so it only
// explains and summarizes.
type Engine struct {
	*openai.Engine
}

func New(key, model string) *Engine {
	return &Engine{Engine: openai.NewWithBaseURL("deepseek", key, model, BaseURL)}
}

func (e *Engine) Classify(_ context.Context, _ []byte, _ string) ([]sample.Observation, error) {
	return nil, fmt.Errorf("%w: DeepSeek Chat API does not accept images; use CLASSIFIER_ENGINE=yolo | gemini | gpt", sample.ErrClassifierUnavailable)
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"truewater/api/internal/ai"
	"truewater/api/internal/sample"
)

const attempts = 3

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// --------------------------- CLASSIFY ---------------------------

func (e *Engine) Classify(ctx context.Context, image []byte, mime string) ([]sample.Observation, error) {
	txt, err := e.generate(ctx, ai.ClassifyPrompt(), classificationSchema(),
		genai.Text("Analyze this water sample image."),
		genai.Blob{MIMEType: mime, Data: image},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini classify: %v", sample.ErrClassifierUnavailable, err)
	}
	obs, err := ai.DecodeClassification(txt)
	if err != nil {
		return nil, fmt.Errorf("gemini classify: %w", err)
	}
	return obs, nil
}

// --------------------------- EXPLAIN ---------------------------

func (e *Engine) Explain(ctx context.Context, summary string) (string, error) {
	txt, err := e.generate(ctx, ai.ExplainPrompt(), nil, genai.Text(ai.ExplainInput(summary)))
	if err != nil {
		return "", fmt.Errorf("%w: gemini explain: %v", sample.ErrGeneration, err)
	}
	if txt = strings.TrimSpace(txt); txt == "" {
		return "", fmt.Errorf("%w: gemini explain: empty response", sample.ErrGeneration)
	}
	return txt, nil
}

// --------------------------- SUMMARIZE ---------------------------

func (e *Engine) Summarize(ctx context.Context, history []sample.Record) (string, error) {
	txt, err := e.generate(ctx, ai.SummarizePrompt(), nil, genai.Text(ai.HistoryInput(history)))
	if err != nil {
		return "", fmt.Errorf("%w: gemini summarize: %v", sample.ErrGeneration, err)
	}
	if txt = strings.TrimSpace(txt); txt == "" {
		return "", fmt.Errorf("%w: gemini summarize: empty response", sample.ErrGeneration)
	}
	return txt, nil
}

// generate runs one prompt with retries on transport errors. A non-nil schema
// switches the model to JSON output.
func (e *Engine) generate(ctx context.Context, system string, schema *genai.Schema, parts ...genai.Part) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0)}
	if schema != nil {
		m.GenerationConfig.ResponseMIMEType = "application/json"
		m.GenerationConfig.ResponseSchema = schema
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			log.Printf("gemini: attempt %d failed: %v", attempt, err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return firstText(resp), nil
	}
	return "", lastErr
}

func classificationSchema() *genai.Schema {
	box := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"x":      {Type: genai.TypeNumber},
			"y":      {Type: genai.TypeNumber},
			"width":  {Type: genai.TypeNumber},
			"height": {Type: genai.TypeNumber},
		},
		Required: []string{"x", "y", "width", "height"},
	}
	item := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":          {Type: genai.TypeString},
			"count":         {Type: genai.TypeInteger},
			"boundingBoxes": {Type: genai.TypeArray, Items: box},
		},
		Required: []string{"name", "count"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"algaeAnalysis": {Type: genai.TypeArray, Items: item},
		},
		Required: []string{"algaeAnalysis"},
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

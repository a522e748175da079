package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"truewater/api/internal/ai"
	"truewater/api/internal/sample"
	"truewater/api/internal/util"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	label   string
	httpc   *http.Client
}

func New(key, model string) *Engine {
	return NewWithBaseURL("gpt", key, model, DefaultBaseURL)
}

// NewWithBaseURL targets any OpenAI-compatible chat-completions API.
func NewWithBaseURL(label, key, model, baseURL string) *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	return &Engine{
		APIKey:  key,
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		label:   label,
		httpc:   &http.Client{Transport: tr},
	}
}

// WithHTTPClient overrides the internal HTTP client (e.g., for custom timeouts or tests).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string     { return e.label }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Classify(ctx context.Context, image []byte, mime string) ([]sample.Observation, error) {
	dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(image))

	var schema map[string]any
	if err := json.Unmarshal([]byte(ai.ClassificationSchema), &schema); err != nil {
		return nil, fmt.Errorf("%w: %s classify: schema: %v", sample.ErrClassifierUnavailable, e.label, err)
	}
	util.FixJSONSchemaStrict(schema)

	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": ai.ClassifyPrompt()},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": "Analyze this water sample image."},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
				},
			},
		},
		"temperature": 0,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "algae_analysis",
				"strict": true,
				"schema": schema,
			},
		},
	}
	out, err := e.chat(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s classify: %v", sample.ErrClassifierUnavailable, e.label, err)
	}
	obs, err := ai.DecodeClassification(out)
	if err != nil {
		return nil, fmt.Errorf("%s classify: %w", e.label, err)
	}
	return obs, nil
}

func (e *Engine) Explain(ctx context.Context, summary string) (string, error) {
	return e.text(ctx, "explain", ai.ExplainPrompt(), ai.ExplainInput(summary))
}

func (e *Engine) Summarize(ctx context.Context, history []sample.Record) (string, error) {
	return e.text(ctx, "summarize", ai.SummarizePrompt(), ai.HistoryInput(history))
}

func (e *Engine) text(ctx context.Context, op, system, user string) (string, error) {
	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": system},
			map[string]any{"role": "user", "content": user},
		},
		"temperature": 0.3,
	}
	out, err := e.chat(ctx, body)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %v", sample.ErrGeneration, e.label, op, err)
	}
	if out = strings.TrimSpace(out); out == "" {
		return "", fmt.Errorf("%w: %s %s: empty response", sample.ErrGeneration, e.label, op)
	}
	return out, nil
}

// chat posts to /chat/completions and returns the first choice content.
func (e *Engine) chat(ctx context.Context, body map[string]any) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%s API key is empty", e.label)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return raw.Choices[0].Message.Content, nil
}

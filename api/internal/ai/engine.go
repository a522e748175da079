package ai

import (
	"context"
	"fmt"
	"strings"

	"truewater/api/internal/sample"
)

// Classifier counts algae species on a sample image. Returned observations are
// raw model output: the caller runs sample.Ingest on them.
// Errors wrap sample.ErrClassifierUnavailable or sample.ErrMalformedResponse.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, image []byte, mime string) ([]sample.Observation, error)
}

// Explainer turns a "name: count, ..." summary into implication text.
// Errors wrap sample.ErrGeneration.
type Explainer interface {
	Explain(ctx context.Context, summary string) (string, error)
}

// Summarizer describes the trend over a lineage ordered by testNumber.
// Errors wrap sample.ErrGeneration.
type Summarizer interface {
	Summarize(ctx context.Context, history []sample.Record) (string, error)
}

// Engine is an LLM provider able to do all three jobs.
type Engine interface {
	Classifier
	Explainer
	Summarizer
	GetModel() string
}

type Engines struct {
	Gemini   Engine
	OpenAI   Engine
	Deepseek Engine
	YOLO     Classifier
}

// GetClassifier resolves CLASSIFIER_ENGINE values.
func (e *Engines) GetClassifier(name string) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yolo", "model":
		if e.YOLO != nil {
			return e.YOLO, nil
		}
	case "gemini", "":
		if e.Gemini != nil {
			return e.Gemini, nil
		}
	case "gpt", "openai":
		if e.OpenAI != nil {
			return e.OpenAI, nil
		}
	case "deepseek":
		if e.Deepseek != nil {
			return e.Deepseek, nil
		}
	default:
		return nil, fmt.Errorf("unknown classifier %q; use yolo | gemini | gpt", name)
	}
	return nil, fmt.Errorf("classifier %q is not configured", name)
}

// GetTextEngine resolves TEXT_ENGINE values (explanations and history summaries).
func (e *Engines) GetTextEngine(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "":
		if e.Gemini != nil {
			return e.Gemini, nil
		}
	case "gpt", "openai":
		if e.OpenAI != nil {
			return e.OpenAI, nil
		}
	case "deepseek":
		if e.Deepseek != nil {
			return e.Deepseek, nil
		}
	default:
		return nil, fmt.Errorf("unknown text engine %q; use gemini | gpt | deepseek", name)
	}
	return nil, fmt.Errorf("text engine %q is not configured", name)
}

// Describe lists configured engines, e.g. "gemini (gemini-2.5-flash), yolo".
func (e *Engines) Describe() string {
	var parts []string
	for _, eng := range []Engine{e.Gemini, e.OpenAI, e.Deepseek} {
		if eng != nil {
			parts = append(parts, fmt.Sprintf("%s (%s)", eng.Name(), eng.GetModel()))
		}
	}
	if e.YOLO != nil {
		parts = append(parts, e.YOLO.Name())
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"truewater/api/internal/sample"
	"truewater/api/internal/util"
)

const defaultClassifyPrompt = `You are an expert in identifying and quantifying algae species in water samples from images.

Analyze the provided image of a water sample. Identify the types and quantities of algae present. For each identified algae instance, provide its species name and a bounding box (x, y, width, height) relative to the image dimensions (values between 0.0 and 1.0).

Group the results by algae name, provide a total count for each, and list all bounding boxes for that species.

If no algae is detected, return an empty array for the algaeAnalysis field.

Return only JSON: {"algaeAnalysis":[{"name":string,"count":integer,"boundingBoxes":[{"x":number,"y":number,"width":number,"height":number}]}]}`

const defaultExplainPrompt = `You are an expert in water quality analysis and public health. Based on the detected algae content in a water sample, provide a detailed, easy-to-understand explanation of its potential implications.

Cover the following points:
1. Overall Water Quality: What does this algae presence mean for the general health of the water body?
2. Ecosystem Impact: How might this affect fish, plants, and other aquatic life?
3. Human Health & Safety: Are there any risks associated with swimming, drinking, or other contact with this water? Mention any potential toxins.
4. Recommendations: Provide simple, actionable advice for the person who took the sample.

Write the explanation in clear, non-technical language.`

const defaultSummarizePrompt = `You are an expert in analyzing water sample data and identifying trends in algae growth.

Given the following historical data for a water sample, provide a concise summary of the algae content trend over time. Indicate whether the algae content is generally increasing, decreasing, or fluctuating, and highlight any significant changes or patterns.`

// ClassificationSchema is the JSON schema of the classifier reply.
const ClassificationSchema = `{
  "type": "object",
  "properties": {
    "algaeAnalysis": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "count": {"type": "integer"},
          "boundingBoxes": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "x": {"type": "number"},
                "y": {"type": "number"},
                "width": {"type": "number"},
                "height": {"type": "number"}
              }
            }
          }
        }
      }
    }
  }
}`

func ClassifyPrompt() string  { return util.LoadPrompt("classify", defaultClassifyPrompt) }
func ExplainPrompt() string   { return util.LoadPrompt("explain", defaultExplainPrompt) }
func SummarizePrompt() string { return util.LoadPrompt("summarize", defaultSummarizePrompt) }

// ExplainInput is the user turn for an explanation request.
func ExplainInput(summary string) string {
	return "Detected Algae Content: " + summary
}

// HistoryEntry is one test as presented to the summarizer.
type HistoryEntry struct {
	Date         string         `json:"date"`
	AlgaeContent map[string]int `json:"algaeContent"`
	TestNumber   int            `json:"testNumber"`
}

func FormatHistory(records []sample.Record) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		content := make(map[string]int, len(r.AlgaeContent))
		for _, o := range r.AlgaeContent {
			content[o.Name] = o.Count
		}
		out = append(out, HistoryEntry{
			Date:         r.DateOfTest.UTC().Format(time.RFC3339),
			AlgaeContent: content,
			TestNumber:   r.TestNumber,
		})
	}
	return out
}

// HistoryInput renders the lineage as plain text, one block per test.
func HistoryInput(records []sample.Record) string {
	var b strings.Builder
	b.WriteString("Sample History:\n")
	for _, e := range FormatHistory(records) {
		fmt.Fprintf(&b, "Test Number: %d\nDate: %s\nAlgae Content:", e.TestNumber, e.Date)
		names := make([]string, 0, len(e.AlgaeContent))
		for n := range e.AlgaeContent {
			names = append(names, n)
		}
		sort.Strings(names)
		if len(names) == 0 {
			b.WriteString(" none")
		}
		for _, n := range names {
			fmt.Fprintf(&b, " %s: %d", n, e.AlgaeContent[n])
		}
		b.WriteString("\n")
	}
	return b.String()
}

type classification struct {
	AlgaeAnalysis []sample.Observation `json:"algaeAnalysis"`
}

// DecodeClassification parses an LLM classifier reply. A reply that is not the
// expected JSON wraps sample.ErrMalformedResponse.
func DecodeClassification(text string) ([]sample.Observation, error) {
	txt := util.StripCodeFences(text)
	if txt == "" {
		return nil, fmt.Errorf("%w: empty reply", sample.ErrMalformedResponse)
	}
	var c classification
	if err := json.Unmarshal([]byte(txt), &c); err != nil {
		return nil, fmt.Errorf("%w: bad JSON: %v", sample.ErrMalformedResponse, err)
	}
	if c.AlgaeAnalysis == nil {
		return []sample.Observation{}, nil
	}
	return c.AlgaeAnalysis, nil
}

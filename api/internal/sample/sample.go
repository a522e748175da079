package sample

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// NoAlgaeExplanation is stored when the classifier finds nothing; the explainer is not called.
	NoAlgaeExplanation = "No algae content was detected in the sample. The water appears to be clean."
	LoadingExplanation = "Loading explanation..."

	pendingPrefix = "pending-"
	testIDPrefix  = "TID-"
)

// BoundingBox uses normalized image-relative coordinates (0..1).
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Observation is one species within a single analysis. Name is unique per analysis.
type Observation struct {
	Name          string        `json:"name"`
	Count         int           `json:"count"`
	BoundingBoxes []BoundingBox `json:"boundingBoxes,omitempty"`
}

type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DisplayName falls back to coordinates for samples saved without a name.
func (l Location) DisplayName() string {
	if n := strings.TrimSpace(l.Name); n != "" {
		return n
	}
	return fmt.Sprintf("Sample from %.4f, %.4f", l.Latitude, l.Longitude)
}

// Record carries the fields shared by pending and durable samples.
type Record struct {
	ID           string        `json:"id"`
	TestID       string        `json:"testId"`
	TestNumber   int           `json:"testNumber"`
	DateOfTest   time.Time     `json:"dateOfTest"`
	Location     Location      `json:"location"`
	ImageURI     string        `json:"imageUri"`
	AlgaeContent []Observation `json:"algaeContent"`
	Explanation  string        `json:"explanation"`
}

// Sample is either Pending (optimistic, not yet stored) or Durable (stored).
// Callers switch on the concrete type.
type Sample interface {
	Data() Record
	sample()
}

type Pending struct{ Record }

type Durable struct{ Record }

func (p Pending) Data() Record { return p.Record }
func (Pending) sample()        {}

func (d Durable) Data() Record { return d.Record }
func (Durable) sample()        {}

// IsPending reports whether s is an optimistic placeholder. A nil s is not pending.
func IsPending(s Sample) bool {
	_, ok := s.(Pending)
	return ok
}

// ID returns the identity of s, or "" for nil.
func ID(s Sample) string {
	if s == nil {
		return ""
	}
	return s.Data().ID
}

func NewPendingID() string { return pendingPrefix + uuid.NewString() }

func NewTestID() string { return testIDPrefix + uuid.NewString() }

// IsPendingID recognises ids minted by NewPendingID.
func IsPendingID(id string) bool { return strings.HasPrefix(id, pendingPrefix) }

// AnalysisState is what the UI shows for the selected sample. Never persisted.
type AnalysisState struct {
	Observations   []Observation `json:"observations"`
	Explanation    string        `json:"explanation"`
	HistorySummary *string       `json:"historySummary,omitempty"`
}

// Summary flattens observations as "name: count, name: count".
func Summary(obs []Observation) string {
	parts := make([]string, 0, len(obs))
	for _, o := range obs {
		parts = append(parts, fmt.Sprintf("%s: %d", o.Name, o.Count))
	}
	return strings.Join(parts, ", ")
}

// TotalCount sums counts across species.
func TotalCount(obs []Observation) int {
	n := 0
	for _, o := range obs {
		n += o.Count
	}
	return n
}

// CloneObservations deep-copies obs so callers never share box slices.
func CloneObservations(obs []Observation) []Observation {
	if obs == nil {
		return nil
	}
	out := make([]Observation, len(obs))
	for i, o := range obs {
		out[i] = o
		if o.BoundingBoxes != nil {
			out[i].BoundingBoxes = append([]BoundingBox(nil), o.BoundingBoxes...)
		}
	}
	return out
}

// Package view derives display-ready structures from orchestrator state.
// Nothing here has side effects.
package view

import (
	"time"

	"truewater/api/internal/history"
	"truewater/api/internal/orchestrator"
	"truewater/api/internal/sample"
)

const NoHistory = "No previous test history for this sample."

type SampleCard struct {
	ID           string               `json:"id"`
	TestID       string               `json:"testId"`
	TestNumber   int                  `json:"testNumber"`
	Pending      bool                 `json:"pending"`
	Retest       bool                 `json:"retest"`
	Date         time.Time            `json:"date"`
	LocationName string               `json:"locationName"`
	Latitude     float64              `json:"latitude"`
	Longitude    float64              `json:"longitude"`
	ImageURL     string               `json:"imageUrl"`
	AlgaeContent []sample.Observation `json:"algaeContent"`
	TotalCount   int                  `json:"totalCount"`
}

type Analysis struct {
	Observations   []sample.Observation `json:"observations"`
	TotalCount     int                  `json:"totalCount"`
	Explanation    string               `json:"explanation"`
	HistorySummary string               `json:"historySummary"`
	HasHistory     bool                 `json:"hasHistory"`
}

type Display struct {
	Selected *SampleCard `json:"selected"`
	Analysis *Analysis   `json:"analysis"`
	IsBusy   bool        `json:"isBusy"`
}

// Project renders the selected sample and its analysis. With nothing
// selected both are nil.
func Project(v orchestrator.View) Display {
	d := Display{IsBusy: v.IsBusy}
	if v.Selected == nil {
		return d
	}
	c := Card(v.Selected)
	d.Selected = &c

	a := Analysis{
		Observations:   nonNil(v.Analysis.Observations),
		TotalCount:     sample.TotalCount(v.Analysis.Observations),
		Explanation:    v.Analysis.Explanation,
		HistorySummary: NoHistory,
	}
	if v.Analysis.HistorySummary != nil {
		a.HistorySummary = *v.Analysis.HistorySummary
		a.HasHistory = true
	}
	d.Analysis = &a
	return d
}

func Card(s sample.Sample) SampleCard {
	r := s.Data()
	return SampleCard{
		ID:           r.ID,
		TestID:       r.TestID,
		TestNumber:   r.TestNumber,
		Pending:      sample.IsPending(s),
		Retest:       history.IsRetest(r),
		Date:         r.DateOfTest,
		LocationName: r.Location.DisplayName(),
		Latitude:     r.Location.Latitude,
		Longitude:    r.Location.Longitude,
		ImageURL:     r.ImageURI,
		AlgaeContent: nonNil(sample.CloneObservations(r.AlgaeContent)),
		TotalCount:   sample.TotalCount(r.AlgaeContent),
	}
}

// ProjectList is the sidebar: one card per sample location, latest test,
// newest first.
func ProjectList(samples []sample.Sample) []SampleCard {
	byID := make(map[string]sample.Sample, len(samples))
	recs := make([]sample.Record, 0, len(samples))
	for _, s := range samples {
		byID[s.Data().ID] = s
		recs = append(recs, s.Data())
	}
	latest := history.GroupLatestPerTestID(recs)
	out := make([]SampleCard, 0, len(latest))
	for _, r := range latest {
		out = append(out, Card(byID[r.ID]))
	}
	return out
}

// History lists every test of one location, oldest first.
func History(testID string, samples []sample.Sample) []SampleCard {
	byID := make(map[string]sample.Sample, len(samples))
	recs := make([]sample.Record, 0, len(samples))
	for _, s := range samples {
		byID[s.Data().ID] = s
		recs = append(recs, s.Data())
	}
	related := history.RelatedTo(testID, recs)
	out := make([]SampleCard, 0, len(related))
	for _, r := range related {
		out = append(out, Card(byID[r.ID]))
	}
	return out
}

func nonNil(obs []sample.Observation) []sample.Observation {
	if obs == nil {
		return []sample.Observation{}
	}
	return obs
}

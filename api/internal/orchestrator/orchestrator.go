// Package orchestrator sequences the analyze-and-persist pipeline and owns
// the client-visible state: the selected sample, its analysis and the set of
// sample locations with a pipeline in flight.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"truewater/api/internal/ai"
	"truewater/api/internal/history"
	"truewater/api/internal/imagestore"
	"truewater/api/internal/sample"
	"truewater/api/internal/store"
)

const defaultTimeout = 2 * time.Minute

// Store is the write side of persistence.
type Store interface {
	Create(ctx context.Context, rec store.NewRecord) (id string, date time.Time, err error)
}

type Deps struct {
	Classifier ai.Classifier
	Explainer  ai.Explainer
	Summarizer ai.Summarizer
	Store      Store
	Images     imagestore.Store // nil stores images inline
	Notifier   Notifier         // nil drops notifications
}

type Option func(*Orchestrator)

// WithTimeout bounds one pipeline run and every background generation request.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock replaces time.Now for optimistic timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithName labels log lines, e.g. with a chat id.
func WithName(name string) Option {
	return func(o *Orchestrator) { o.name = name }
}

// View is the read-only state exposed to presentation code.
type View struct {
	Selected sample.Sample
	Analysis sample.AnalysisState
	IsBusy   bool
}

type Orchestrator struct {
	deps    Deps
	timeout time.Duration
	now     func() time.Time
	name    string

	mu        sync.Mutex
	selection sample.Sample
	lastGood  sample.Sample // last durable selection, the revert target
	analysis  sample.AnalysisState
	gen       uint64 // bumped on every selection change
	busy      map[string]struct{}
	pending   map[string]sample.Pending
	snapshot  []sample.Record
	local     map[string]sample.Record // written here, not yet seen in a snapshot

	subs   map[int]chan View
	nextID int
}

func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.Images == nil {
		deps.Images = imagestore.Inline{}
	}
	o := &Orchestrator{
		deps:    deps,
		timeout: defaultTimeout,
		now:     time.Now,
		name:    "orchestrator",
		busy:    make(map[string]struct{}),
		pending: make(map[string]sample.Pending),
		local:   make(map[string]sample.Record),
		subs:    make(map[int]chan View),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ApplySnapshot takes a full store collection as the new ground truth.
func (o *Orchestrator) ApplySnapshot(records []sample.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.snapshot = append([]sample.Record(nil), records...)
	seen := make(map[string]sample.Record, len(records))
	for _, r := range records {
		seen[r.ID] = r
	}
	for id := range o.local {
		if _, ok := seen[id]; ok {
			delete(o.local, id)
		}
	}

	switch sel := o.selection.(type) {
	case nil:
		if newest, ok := history.Newest(o.snapshot); ok {
			o.selectLocked(sample.Durable{Record: newest})
		}
	case sample.Durable:
		if r, ok := seen[sel.ID]; ok {
			o.selection = sample.Durable{Record: r}
		}
	}
	o.publishLocked()
}

// Records is the working set: the last snapshot plus durable records this
// orchestrator wrote that the snapshot does not show yet.
func (o *Orchestrator) Records() []sample.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workingSetLocked()
}

// Samples is Records plus in-flight pending samples.
func (o *Orchestrator) Samples() []sample.Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	recs := o.workingSetLocked()
	out := make([]sample.Sample, 0, len(recs)+len(o.pending))
	for _, r := range recs {
		out = append(out, sample.Durable{Record: r})
	}
	for _, p := range o.pending {
		out = append(out, p)
	}
	return out
}

func (o *Orchestrator) workingSetLocked() []sample.Record {
	out := make([]sample.Record, 0, len(o.snapshot)+len(o.local))
	out = append(out, o.snapshot...)
	for _, r := range o.local {
		out = append(out, r)
	}
	return out
}

func (o *Orchestrator) findLocked(id string) (sample.Sample, bool) {
	if p, ok := o.pending[id]; ok {
		return p, true
	}
	if r, ok := o.local[id]; ok {
		return sample.Durable{Record: r}, true
	}
	for _, r := range o.snapshot {
		if r.ID == id {
			return sample.Durable{Record: r}, true
		}
	}
	return nil, false
}

// SelectSample switches the selection. In-flight pipelines keep running.
func (o *Orchestrator) SelectSample(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.findLocked(id)
	if !ok {
		return sample.ErrSampleNotFound
	}
	o.selectLocked(s)
	o.publishLocked()
	return nil
}

// selectLocked replaces the selection, re-derives the analysis from stored
// fields and starts the background requests the stored record lacks.
func (o *Orchestrator) selectLocked(s sample.Sample) {
	o.gen++
	o.selection = s
	o.analysis = sample.AnalysisState{}
	if s == nil {
		return
	}
	rec := s.Data()
	o.analysis.Observations = sample.CloneObservations(rec.AlgaeContent)
	o.analysis.Explanation = rec.Explanation

	d, ok := s.(sample.Durable)
	if !ok {
		return
	}
	o.lastGood = d

	gen := o.gen
	if rec.Explanation == "" {
		if len(rec.AlgaeContent) == 0 {
			o.analysis.Explanation = sample.NoAlgaeExplanation
		} else {
			o.analysis.Explanation = sample.LoadingExplanation
			go o.explainSelected(gen, sample.Summary(rec.AlgaeContent))
		}
	}
	if related := history.RelatedTo(rec.TestID, o.workingSetLocked()); len(related) >= 2 {
		go o.summarizeSelected(gen, related)
	}
}

func (o *Orchestrator) explainSelected(gen uint64, summary string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	text, err := o.explain(ctx, summary)

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.analysis.Explanation = ""
	} else {
		o.analysis.Explanation = text
	}
	o.publishLocked()
	o.mu.Unlock()

	if err != nil {
		log.Printf("%s: explanation: %v", o.name, err)
		o.notify(failure("Explanation Unavailable", err))
	}
}

func (o *Orchestrator) summarizeSelected(gen uint64, related []sample.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	text, err := o.summarize(ctx, related)

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	if err == nil {
		o.analysis.HistorySummary = &text
		o.publishLocked()
	}
	o.mu.Unlock()

	if err != nil {
		log.Printf("%s: history summary: %v", o.name, err)
		o.notify(failure("History Summary Unavailable", err))
	}
}

// CurrentView returns a copy of the visible state.
func (o *Orchestrator) CurrentView() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

func (o *Orchestrator) viewLocked() View {
	a := sample.AnalysisState{
		Observations: sample.CloneObservations(o.analysis.Observations),
		Explanation:  o.analysis.Explanation,
	}
	if o.analysis.HistorySummary != nil {
		s := *o.analysis.HistorySummary
		a.HistorySummary = &s
	}
	return View{Selected: o.selection, Analysis: a, IsBusy: len(o.busy) > 0}
}

// Watch delivers the latest View after every change. Slow readers only see
// the most recent one. Call cancel to stop.
func (o *Orchestrator) Watch() (<-chan View, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	ch := make(chan View, 1)
	ch <- o.viewLocked()
	o.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *Orchestrator) publishLocked() {
	if len(o.subs) == 0 {
		return
	}
	v := o.viewLocked()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

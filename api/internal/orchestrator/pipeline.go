package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"truewater/api/internal/history"
	"truewater/api/internal/imagestore"
	"truewater/api/internal/metrics"
	"truewater/api/internal/sample"
	"truewater/api/internal/store"
	"truewater/api/internal/util"
)

type SubmitRequest struct {
	Image    []byte
	MIME     string // sniffed when empty
	Location sample.Location
	IsRetest bool // ignores Location; inherits testId and location of the selection
}

// Run is one analyze-and-persist pipeline.
type Run struct {
	pending sample.Pending
	done    chan struct{}
	result  sample.Durable
	err     error
}

func (r *Run) Pending() sample.Pending { return r.pending }

func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the pipeline settles or ctx is done. Abandoning the wait
// does not stop the pipeline.
func (r *Run) Wait(ctx context.Context) (sample.Durable, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return sample.Durable{}, ctx.Err()
	}
}

// SubmitAnalysis publishes and selects an optimistic sample, then analyzes and
// persists it in the background. Rejected submissions consume no test number.
func (o *Orchestrator) SubmitAnalysis(ctx context.Context, req SubmitRequest) (*Run, error) {
	if len(req.Image) == 0 {
		metrics.Rejections.WithLabelValues(sample.Kind(sample.ErrEmptyImage)).Inc()
		return nil, sample.ErrEmptyImage
	}
	mime := req.MIME
	if mime == "" {
		mime = util.SniffMimeHTTP(req.Image)
	}

	o.mu.Lock()
	var (
		testID   string
		location sample.Location
		number   int
	)
	if req.IsRetest {
		if o.selection == nil {
			o.mu.Unlock()
			metrics.Rejections.WithLabelValues(sample.Kind(sample.ErrNoActiveSample)).Inc()
			return nil, sample.ErrNoActiveSample
		}
		sel := o.selection.Data()
		testID, location = sel.TestID, sel.Location
		if _, busy := o.busy[testID]; busy {
			o.mu.Unlock()
			metrics.Rejections.WithLabelValues(sample.Kind(sample.ErrPipelineBusy)).Inc()
			return nil, sample.ErrPipelineBusy
		}
		number = history.NextTestNumber(testID, o.workingSetLocked())
	} else {
		testID, location, number = sample.NewTestID(), req.Location, 1
	}

	p := sample.Pending{Record: sample.Record{
		ID:           sample.NewPendingID(),
		TestID:       testID,
		TestNumber:   number,
		DateOfTest:   o.now(),
		Location:     location,
		ImageURI:     util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(req.Image)),
		AlgaeContent: []sample.Observation{},
		Explanation:  sample.LoadingExplanation,
	}}
	revertTo := o.lastGood
	o.busy[testID] = struct{}{}
	o.pending[p.ID] = p
	o.selectLocked(p)
	o.publishLocked()
	o.mu.Unlock()

	metrics.PipelinesInFlight.Inc()
	run := &Run{pending: p, done: make(chan struct{})}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	go func() {
		defer cancel()
		defer close(run.done)
		defer metrics.PipelinesInFlight.Dec()
		start := time.Now()
		run.result, run.err = o.pipeline(pctx, p, revertTo, req.Image, mime)
		metrics.ObservePipeline(start, run.err)
	}()
	return run, nil
}

func (o *Orchestrator) pipeline(ctx context.Context, p sample.Pending, revertTo sample.Sample, image []byte, mime string) (sample.Durable, error) {
	tag := fmt.Sprintf("%s#%d", p.TestID, p.TestNumber)

	raw, err := o.classify(ctx, image, mime)
	if err == nil {
		raw, err = sample.Ingest(raw)
	}
	if err != nil {
		return o.abort(tag, p, revertTo, err)
	}
	obs := raw
	o.updatePending(p.ID, func(r *sample.Record) { r.AlgaeContent = obs }, func(a *sample.AnalysisState) {
		a.Observations = sample.CloneObservations(obs)
	})

	explanation := sample.NoAlgaeExplanation
	if len(obs) > 0 {
		if explanation, err = o.explain(ctx, sample.Summary(obs)); err != nil {
			return o.abort(tag, p, revertTo, err)
		}
	}
	o.updatePending(p.ID, func(r *sample.Record) { r.Explanation = explanation }, func(a *sample.AnalysisState) {
		a.Explanation = explanation
	})

	imageURI, err := o.putImage(ctx, imagestore.Key(p.TestID, p.TestNumber, mime), image, mime)
	if err != nil {
		return o.abort(tag, p, revertTo, err)
	}

	in := store.NewRecord{
		TestID:       p.TestID,
		TestNumber:   p.TestNumber,
		Location:     p.Location,
		ImageURI:     imageURI,
		AlgaeContent: obs,
		Explanation:  explanation,
	}
	id, date, err := o.create(ctx, in)
	if err != nil {
		return o.abort(tag, p, revertTo, err)
	}

	d := sample.Durable{Record: sample.Record{
		ID:           id,
		TestID:       in.TestID,
		TestNumber:   in.TestNumber,
		DateOfTest:   date,
		Location:     in.Location,
		ImageURI:     in.ImageURI,
		AlgaeContent: sample.CloneObservations(obs),
		Explanation:  explanation,
	}}

	o.mu.Lock()
	delete(o.pending, p.ID)
	o.local[d.ID] = d.Record
	selected := sample.ID(o.selection) == p.ID
	if selected {
		o.selection = d
		o.lastGood = d
	}
	gen := o.gen
	related := history.RelatedTo(d.TestID, o.workingSetLocked())
	o.publishLocked()
	o.mu.Unlock()

	log.Printf("%s: pipeline %s: saved as %s", o.name, tag, d.ID)
	o.notify(analysisComplete)

	if selected && len(related) >= 2 {
		text, err := o.summarize(ctx, related)
		o.mu.Lock()
		apply := err == nil && o.gen == gen && sample.ID(o.selection) == d.ID
		if apply {
			o.analysis.HistorySummary = &text
			o.publishLocked()
		}
		o.mu.Unlock()
		if err != nil {
			log.Printf("%s: pipeline %s: history summary: %v", o.name, tag, err)
			o.notify(failure("History Summary Unavailable", err))
		}
	}

	o.release(p.TestID)
	return d, nil
}

// updatePending mutates the optimistic record and, while it is still
// selected, the visible analysis.
func (o *Orchestrator) updatePending(id string, rec func(*sample.Record), an func(*sample.AnalysisState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[id]
	if !ok {
		return
	}
	rec(&p.Record)
	o.pending[id] = p
	if sample.ID(o.selection) == id {
		o.selection = p
		an(&o.analysis)
		o.publishLocked()
	}
}

// abort drops the optimistic sample and reverts the selection when it still
// points at it.
func (o *Orchestrator) abort(tag string, p sample.Pending, revertTo sample.Sample, err error) (sample.Durable, error) {
	log.Printf("%s: pipeline %s failed: %v", o.name, tag, err)

	o.mu.Lock()
	delete(o.pending, p.ID)
	delete(o.busy, p.TestID)
	if sample.ID(o.selection) == p.ID {
		o.selectLocked(o.refreshLocked(revertTo))
	}
	o.publishLocked()
	o.mu.Unlock()

	for _, n := range pipelineFailure(err) {
		o.notify(n)
	}
	return sample.Durable{}, err
}

// refreshLocked swaps s for its current working-set copy when it has one.
func (o *Orchestrator) refreshLocked(s sample.Sample) sample.Sample {
	if s == nil {
		return nil
	}
	if cur, ok := o.findLocked(s.Data().ID); ok {
		return cur
	}
	return s
}

func (o *Orchestrator) release(testID string) {
	o.mu.Lock()
	delete(o.busy, testID)
	o.publishLocked()
	o.mu.Unlock()
}

// ---- gateway calls, made without holding mu ----

func (o *Orchestrator) classify(ctx context.Context, image []byte, mime string) ([]sample.Observation, error) {
	start := time.Now()
	obs, err := o.deps.Classifier.Classify(ctx, image, mime)
	metrics.ObserveGateway("classify", start, err)
	return obs, err
}

func (o *Orchestrator) explain(ctx context.Context, summary string) (string, error) {
	start := time.Now()
	text, err := o.deps.Explainer.Explain(ctx, summary)
	metrics.ObserveGateway("explain", start, err)
	return text, err
}

func (o *Orchestrator) summarize(ctx context.Context, related []sample.Record) (string, error) {
	start := time.Now()
	text, err := o.deps.Summarizer.Summarize(ctx, related)
	metrics.ObserveGateway("summarize", start, err)
	return text, err
}

func (o *Orchestrator) putImage(ctx context.Context, key string, image []byte, mime string) (string, error) {
	start := time.Now()
	uri, err := o.deps.Images.Put(ctx, key, image, mime)
	metrics.ObserveGateway("image", start, err)
	return uri, err
}

func (o *Orchestrator) create(ctx context.Context, in store.NewRecord) (string, time.Time, error) {
	start := time.Now()
	id, date, err := o.deps.Store.Create(ctx, in)
	metrics.ObserveGateway("store", start, err)
	return id, date, err
}

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"truewater/api/internal/sample"
	"truewater/api/internal/store"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0}

type fakeClassifier struct {
	mu      sync.Mutex
	obs     []sample.Observation
	err     error
	calls   int
	gate    chan struct{} // when set, Classify blocks until it receives
	entered chan struct{}
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, _ []byte, _ string) ([]sample.Observation, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	obs, err := sample.CloneObservations(f.obs), f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return obs, err
}

func (f *fakeClassifier) set(obs []sample.Observation, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs, f.err = obs, err
}

type fakeText struct {
	mu          sync.Mutex
	explainErr  error
	summaryErr  error
	explained   []string
	summarized  [][]int // test numbers per call
	summaryText string
}

func (f *fakeText) Explain(_ context.Context, summary string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explained = append(f.explained, summary)
	if f.explainErr != nil {
		return "", f.explainErr
	}
	return "Implications of " + summary, nil
}

func (f *fakeText) Summarize(_ context.Context, history []sample.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nums := make([]int, 0, len(history))
	for _, r := range history {
		nums = append(nums, r.TestNumber)
	}
	f.summarized = append(f.summarized, nums)
	if f.summaryErr != nil {
		return "", f.summaryErr
	}
	if f.summaryText != "" {
		return f.summaryText, nil
	}
	return fmt.Sprintf("trend over %d tests", len(history)), nil
}

func (f *fakeText) explainCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.explained)
}

func (f *fakeText) summaryCalls() [][]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int(nil), f.summarized...)
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// memStore assigns ids and dates like the database would.
type memStore struct {
	mu      sync.Mutex
	records []sample.Record
	err     error
}

func (m *memStore) Create(_ context.Context, in store.NewRecord) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	for _, r := range m.records {
		if r.TestID == in.TestID && r.TestNumber == in.TestNumber {
			return "", time.Time{}, fmt.Errorf("%w: duplicate test number", sample.ErrPersistence)
		}
	}
	n := len(m.records) + 1
	id := fmt.Sprintf("rec-%d", n)
	date := base.Add(time.Duration(n) * time.Minute)
	m.records = append(m.records, sample.Record{
		ID:           id,
		TestID:       in.TestID,
		TestNumber:   in.TestNumber,
		DateOfTest:   date,
		Location:     in.Location,
		ImageURI:     in.ImageURI,
		AlgaeContent: sample.CloneObservations(in.AlgaeContent),
		Explanation:  in.Explanation,
	})
	return id, date, nil
}

func (m *memStore) List() []sample.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sample.Record(nil), m.records...)
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Kind)
	}
	return out
}

type harness struct {
	o     *Orchestrator
	cls   *fakeClassifier
	text  *fakeText
	store *memStore
	notes *recorder
}

func newHarness() *harness {
	h := &harness{
		cls:   &fakeClassifier{},
		text:  &fakeText{},
		store: &memStore{},
		notes: &recorder{},
	}
	h.o = New(Deps{
		Classifier: h.cls,
		Explainer:  h.text,
		Summarizer: h.text,
		Store:      h.store,
		Notifier:   h.notes,
	}, WithTimeout(5*time.Second), WithClock(func() time.Time { return base }))
	return h
}

func durable(id, testID string, n int, obs ...sample.Observation) sample.Record {
	return sample.Record{
		ID:           id,
		TestID:       testID,
		TestNumber:   n,
		DateOfTest:   base.Add(-time.Duration(10-n) * time.Hour),
		Location:     sample.Location{Name: "Hong Kong Harbour", Latitude: 22.3193, Longitude: 114.1694},
		ImageURI:     "https://img/" + id,
		AlgaeContent: obs,
		Explanation:  "stored explanation",
	}
}

package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truewater/api/internal/orchestrator"
	"truewater/api/internal/sample"
	"truewater/api/internal/store"
	"truewater/api/internal/view"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}

type classifier struct{ gate chan struct{} }

func (classifier) Name() string { return "stub" }
func (c classifier) Classify(ctx context.Context, _ []byte, _ string) ([]sample.Observation, error) {
	if c.gate != nil {
		<-c.gate
	}
	return []sample.Observation{{Name: "microcystis", Count: 50}}, nil
}

type text struct{}

func (text) Explain(context.Context, string) (string, error) { return "bloom risk", nil }
func (text) Summarize(context.Context, []sample.Record) (string, error) {
	return "stable", nil
}

type memStore struct {
	mu sync.Mutex
	n  int
}

func (m *memStore) Create(context.Context, store.NewRecord) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return fmt.Sprintf("rec-%d", m.n), time.Now().UTC(), nil
}

func newServer(t *testing.T, gate chan struct{}, ping func(context.Context) error) (*httptest.Server, *orchestrator.Orchestrator, *Inbox) {
	t.Helper()
	inbox := NewInbox(10)
	o := orchestrator.New(orchestrator.Deps{
		Classifier: classifier{gate: gate},
		Explainer:  text{},
		Summarizer: text{},
		Store:      &memStore{},
		Notifier:   inbox,
	})
	srv := httptest.NewServer(New(o, Options{Ping: ping, Inbox: inbox, Engines: "yolo, gemini (m)"}).Routes())
	t.Cleanup(srv.Close)
	return srv, o, inbox
}

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "sample.jpg")
	require.NoError(t, err)
	_, _ = fw.Write(jpeg)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postAnalysis(t *testing.T, srv *httptest.Server, fields map[string]string) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, fields)
	resp, err := http.Post(srv.URL+"/api/analyses", ct, body)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSubmitAndList(t *testing.T) {
	srv, o, inbox := newServer(t, nil, nil)

	resp := postAnalysis(t, srv, map[string]string{"locationName": "Harbour", "latitude": "22.3", "longitude": "114.1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode[analysisResponse](t, resp)
	assert.True(t, out.Pending.Pending)
	assert.Equal(t, "Harbour", out.Pending.LocationName)
	assert.Equal(t, 1, out.Pending.TestNumber)

	require.Eventually(t, func() bool {
		v := o.CurrentView()
		return !v.IsBusy && v.Selected != nil && !sample.IsPending(v.Selected)
	}, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/samples")
	require.NoError(t, err)
	cards := decode[[]view.SampleCard](t, resp)
	require.Len(t, cards, 1)
	assert.Equal(t, 50, cards[0].TotalCount)

	resp, err = http.Get(srv.URL + "/api/samples/" + cards[0].TestID + "/history")
	require.NoError(t, err)
	assert.Len(t, decode[[]view.SampleCard](t, resp), 1)

	resp, err = http.Get(srv.URL + "/api/view")
	require.NoError(t, err)
	d := decode[view.Display](t, resp)
	require.NotNil(t, d.Analysis)
	assert.Equal(t, "bloom risk", d.Analysis.Explanation)
	assert.Equal(t, view.NoHistory, d.Analysis.HistorySummary)

	require.Eventually(t, func() bool { return len(inbox.Since(0)) == 1 }, time.Second, 5*time.Millisecond)
	resp, err = http.Get(srv.URL + "/api/notifications")
	require.NoError(t, err)
	notes := decode[[]Notice](t, resp)
	assert.Equal(t, "Analysis Complete", notes[0].Title)
}

func TestSubmitJSON(t *testing.T) {
	srv, _, _ := newServer(t, nil, nil)
	body := `{"image_b64":"data:image/jpeg;base64,/9j/4AA=","latitude":1.5,"longitude":2.5}`
	resp, err := http.Post(srv.URL+"/api/analyses", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode[analysisResponse](t, resp)
	assert.Equal(t, "Sample from 1.5000, 2.5000", out.Pending.LocationName)
}

func TestSubmitErrors(t *testing.T) {
	srv, _, _ := newServer(t, nil, nil)

	resp := postAnalysis(t, srv, map[string]string{"retest": "true"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_active_sample", decode[map[string]string](t, resp)["kind"])

	resp = postAnalysis(t, srv, map[string]string{"locationName": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postAnalysis(t, srv, map[string]string{"latitude": "north", "longitude": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestBusyRetestIsConflict(t *testing.T) {
	gate := make(chan struct{})
	srv, _, _ := newServer(t, gate, nil)

	resp := postAnalysis(t, srv, map[string]string{"latitude": "1", "longitude": "2"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = postAnalysis(t, srv, map[string]string{"retest": "true"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	close(gate)
}

func TestSelect(t *testing.T) {
	srv, o, _ := newServer(t, nil, nil)
	o.ApplySnapshot([]sample.Record{
		{ID: "1", TestID: "TID-a", TestNumber: 1, Explanation: "e1"},
		{ID: "2", TestID: "TID-b", TestNumber: 1, Explanation: "e2", DateOfTest: time.Now()},
	})

	resp, err := http.Post(srv.URL+"/api/selection", "application/json", strings.NewReader(`{"id":"1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decode[view.Display](t, resp)
	assert.Equal(t, "1", d.Selected.ID)
	assert.Equal(t, "e1", d.Analysis.Explanation)

	resp, err = http.Post(srv.URL+"/api/selection", "application/json", strings.NewReader(`{"id":"nope"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/samples/TID-zzz/history")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestViewLongPoll(t *testing.T) {
	srv, o, _ := newServer(t, nil, nil)
	go func() {
		time.Sleep(50 * time.Millisecond)
		o.ApplySnapshot([]sample.Record{{ID: "1", TestID: "TID-a", TestNumber: 1, Explanation: "e"}})
	}()
	resp, err := http.Get(srv.URL + "/api/view?wait=5")
	require.NoError(t, err)
	d := decode[view.Display](t, resp)
	require.NotNil(t, d.Selected)
	assert.Equal(t, "1", d.Selected.ID)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newServer(t, nil, func(context.Context) error { return errors.New("down") })
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	ok, _, _ := newServer(t, nil, nil)
	resp, err = http.Get(ok.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ok.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(sample.ErrClassifierUnavailable))
	assert.Equal(t, http.StatusBadGateway, statusFor(sample.ErrPermissionDenied))
	assert.Equal(t, http.StatusConflict, statusFor(sample.ErrPipelineBusy))
}

func TestInboxBounded(t *testing.T) {
	b := NewInbox(2)
	for i := 0; i < 3; i++ {
		b.Notify(orchestrator.Notification{Kind: orchestrator.KindError, Title: "t"})
	}
	all := b.Since(0)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].Seq)
	assert.Len(t, b.Since(2), 1)
}

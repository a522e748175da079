package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"truewater/api/internal/orchestrator"
	"truewater/api/internal/sample"
	"truewater/api/internal/util"
	"truewater/api/internal/view"
)

func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.ProjectList(s.orch.Samples()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	cards := view.History(chi.URLParam(r, "testId"), s.orch.Samples())
	if len(cards) == 0 {
		writeError(w, sample.ErrSampleNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

type selectRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
		return
	}
	if err := s.orch.SelectSample(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Project(s.orch.CurrentView()))
}

// analysisRequest is the JSON form of POST /api/analyses; multipart uploads
// carry the same fields as form values plus a "file" part.
type analysisRequest struct {
	ImageB64     string   `json:"image_b64"`
	LocationName string   `json:"locationName"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Retest       bool     `json:"retest"`
}

type analysisResponse struct {
	Pending view.SampleCard `json:"pending"`
	View    view.Display    `json:"view"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload)

	var (
		req  orchestrator.SubmitRequest
		err  error
		ct   string
		lat  *float64
		lng  *float64
		name string
	)
	ct, _, _ = mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var in analysisRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
			return
		}
		img, hint, err := util.DecodeBase64MaybeDataURL(in.ImageB64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad image_b64"})
			return
		}
		req.Image = img
		req.MIME = util.PickMIME("", hint, img)
		req.IsRetest = in.Retest
		name, lat, lng = in.LocationName, in.Latitude, in.Longitude
	default:
		if err := r.ParseMultipartForm(s.opts.MaxUpload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad multipart form: " + err.Error()})
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
			return
		}
		defer f.Close()
		if req.Image, err = io.ReadAll(f); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read file: " + err.Error()})
			return
		}
		if m := util.SniffMimeHTTP(req.Image); m != "application/octet-stream" {
			req.MIME = m
		} else {
			req.MIME = util.PickMIME("", hdr.Header.Get("Content-Type"), req.Image)
		}
		req.IsRetest, _ = strconv.ParseBool(r.FormValue("retest"))
		name = r.FormValue("locationName")
		if lat, err = formFloat(r, "latitude"); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if lng, err = formFloat(r, "longitude"); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	if !req.IsRetest {
		if lat == nil || lng == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "latitude and longitude are required for a new sample"})
			return
		}
		req.Location = sample.Location{Name: strings.TrimSpace(name), Latitude: *lat, Longitude: *lng}
	}

	run, err := s.orch.SubmitAnalysis(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, analysisResponse{
		Pending: view.Card(run.Pending()),
		View:    view.Project(s.orch.CurrentView()),
	})
}

func formFloat(r *http.Request, key string) (*float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("bad %s: %q", key, v)
	}
	return &f, nil
}

const maxWait = 60 * time.Second

// handleView returns the current view; with ?wait=<sec> (or X-Request-Timeout)
// it first waits up to that long for the next change.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var wait time.Duration
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			wait = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("wait"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			wait = time.Duration(v) * time.Second
		}
	}
	if wait > maxWait {
		wait = maxWait
	}

	if wait > 0 {
		ch, cancel := s.orch.Watch()
		defer cancel()
		<-ch // current state
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case v := <-ch:
			writeJSON(w, http.StatusOK, view.Project(v))
			return
		case <-t.C:
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, http.StatusOK, view.Project(s.orch.CurrentView()))
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.opts.Inbox == nil {
		writeJSON(w, http.StatusOK, []Notice{})
		return
	}
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		since, _ = strconv.ParseInt(v, 10, 64)
	}
	writeJSON(w, http.StatusOK, s.opts.Inbox.Since(since))
}

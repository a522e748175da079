// Package yolo calls the object-detection model service that counts algae
// classes on an uploaded image.
package yolo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"truewater/api/internal/sample"
)

type Client struct {
	BaseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Name() string { return "yolo" }

type analyzeResp struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	TotalCount     int    `json:"total_count"`
	DetailedCounts []struct {
		AlgaeName string `json:"algaeName"`
		Count     int    `json:"count"`
	} `json:"detailed_counts"`
}

// Classify posts the image as multipart field "file" to {BaseURL}/analyze.
// The service reports counts only, so observations carry no bounding boxes.
func (c *Client) Classify(ctx context.Context, image []byte, mime string) ([]sample.Observation, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="sample"`)
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%w: yolo: build request: %v", sample.ErrClassifierUnavailable, err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("%w: yolo: build request: %v", sample.ErrClassifierUnavailable, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: yolo: build request: %v", sample.ErrClassifierUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/analyze", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: yolo: %v", sample.ErrClassifierUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yolo call failed: %v", sample.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: yolo non-2xx: %s, body: %s", sample.ErrClassifierUnavailable, resp.Status, string(data))
	}

	var out analyzeResp
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: yolo: decode: %v", sample.ErrMalformedResponse, err)
	}
	switch out.Status {
	case "success":
	case "error":
		return nil, fmt.Errorf("%w: yolo: %s", sample.ErrClassifierUnavailable, out.Message)
	default:
		return nil, fmt.Errorf("%w: yolo: unexpected status %q", sample.ErrMalformedResponse, out.Status)
	}

	obs := make([]sample.Observation, 0, len(out.DetailedCounts))
	for _, d := range out.DetailedCounts {
		obs = append(obs, sample.Observation{Name: d.AlgaeName, Count: d.Count})
	}
	return obs, nil
}

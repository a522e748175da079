package sample

import (
	"fmt"
	"math"
	"strings"
)

// Ingest validates classifier output and merges duplicate species by name:
// counts are summed, bounding boxes concatenated, first-seen order kept.
// It must run exactly once per analysis, where the external output enters.
func Ingest(raw []Observation) ([]Observation, error) {
	out := make([]Observation, 0, len(raw))
	index := make(map[string]int, len(raw))
	for i, o := range raw {
		name := strings.TrimSpace(o.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: observation %d has empty name", ErrMalformedResponse, i)
		}
		if o.Count < 0 {
			return nil, fmt.Errorf("%w: %s has negative count %d", ErrMalformedResponse, name, o.Count)
		}
		for j, b := range o.BoundingBoxes {
			if err := validateBox(b); err != nil {
				return nil, fmt.Errorf("%w: %s box %d: %v", ErrMalformedResponse, name, j, err)
			}
		}

		if k, ok := index[name]; ok {
			out[k].Count += o.Count
			out[k].BoundingBoxes = append(out[k].BoundingBoxes, o.BoundingBoxes...)
			continue
		}
		index[name] = len(out)
		var boxes []BoundingBox
		if len(o.BoundingBoxes) > 0 {
			boxes = append([]BoundingBox(nil), o.BoundingBoxes...)
		}
		out = append(out, Observation{Name: name, Count: o.Count, BoundingBoxes: boxes})
	}
	return out, nil
}

// x+width <= 1 is not checked: the model is trusted on extents.
func validateBox(b BoundingBox) error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"x", b.X}, {"y", b.Y}, {"width", b.Width}, {"height", b.Height}} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("%s=%v outside [0,1]", f.name, f.v)
		}
	}
	return nil
}

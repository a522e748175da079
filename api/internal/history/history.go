// Package history derives per-location views from a snapshot of stored samples.
// Every function is pure: inputs are never modified and results are fresh slices.
package history

import (
	"sort"

	"truewater/api/internal/sample"
)

// GroupLatestPerTestID returns the highest-numbered record of every testId,
// newest dateOfTest first. Equal dates fall back to testId order.
func GroupLatestPerTestID(records []sample.Record) []sample.Record {
	latest := make(map[string]sample.Record, len(records))
	for _, r := range records {
		cur, ok := latest[r.TestID]
		if !ok || r.TestNumber > cur.TestNumber {
			latest[r.TestID] = r
		}
	}
	out := make([]sample.Record, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateOfTest.Equal(out[j].DateOfTest) {
			return out[i].DateOfTest.After(out[j].DateOfTest)
		}
		return out[i].TestID < out[j].TestID
	})
	return out
}

// RelatedTo returns every record of testID ordered by testNumber ascending.
func RelatedTo(testID string, records []sample.Record) []sample.Record {
	out := make([]sample.Record, 0, 4)
	for _, r := range records {
		if r.TestID == testID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TestNumber < out[j].TestNumber })
	return out
}

// NextTestNumber is max(testNumber)+1 over RelatedTo, or 1.
func NextTestNumber(testID string, records []sample.Record) int {
	max := 0
	for _, r := range records {
		if r.TestID == testID && r.TestNumber > max {
			max = r.TestNumber
		}
	}
	return max + 1
}

// Previous returns the record tested just before r in its lineage.
func Previous(r sample.Record, records []sample.Record) (sample.Record, bool) {
	var (
		prev  sample.Record
		found bool
	)
	for _, c := range records {
		if c.TestID != r.TestID || c.TestNumber >= r.TestNumber {
			continue
		}
		if !found || c.TestNumber > prev.TestNumber {
			prev, found = c, true
		}
	}
	return prev, found
}

func IsRetest(r sample.Record) bool { return r.TestNumber > 1 }

// Newest returns the record with the latest dateOfTest.
func Newest(records []sample.Record) (sample.Record, bool) {
	if len(records) == 0 {
		return sample.Record{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.DateOfTest.After(best.DateOfTest) {
			best = r
		}
	}
	return best, true
}

package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truewater/api/internal/sample"
)

func day(d int) time.Time { return time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC) }

func fixture() []sample.Record {
	return []sample.Record{
		{ID: "1", TestID: "HK-01", TestNumber: 1, DateOfTest: day(1)},
		{ID: "3", TestID: "SL-01", TestNumber: 1, DateOfTest: day(20)},
		{ID: "2", TestID: "HK-01", TestNumber: 2, DateOfTest: day(15)},
		{ID: "5", TestID: "YR-01", TestNumber: 2, DateOfTest: day(28)},
		{ID: "4", TestID: "YR-01", TestNumber: 1, DateOfTest: day(25)},
	}
}

func ids(rs []sample.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestGroupLatestPerTestID(t *testing.T) {
	got := GroupLatestPerTestID(fixture())
	assert.Equal(t, []string{"5", "3", "2"}, ids(got))
}

func TestGroupLatestIsIdempotent(t *testing.T) {
	snap := fixture()
	before := append([]sample.Record(nil), snap...)
	a := GroupLatestPerTestID(snap)
	b := GroupLatestPerTestID(snap)
	assert.Equal(t, a, b)
	assert.Equal(t, before, snap, "input must not be reordered")
}

func TestGroupLatestTieBreaksOnTestID(t *testing.T) {
	got := GroupLatestPerTestID([]sample.Record{
		{ID: "b", TestID: "B", TestNumber: 1, DateOfTest: day(1)},
		{ID: "a", TestID: "A", TestNumber: 1, DateOfTest: day(1)},
	})
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestRelatedTo(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, ids(RelatedTo("HK-01", fixture())))
	assert.Empty(t, RelatedTo("nope", fixture()))
}

func TestNextTestNumber(t *testing.T) {
	assert.Equal(t, 3, NextTestNumber("HK-01", fixture()))
	assert.Equal(t, 2, NextTestNumber("SL-01", fixture()))
	assert.Equal(t, 1, NextTestNumber("new", fixture()))
	assert.Equal(t, 1, NextTestNumber("new", nil))
}

func TestPrevious(t *testing.T) {
	recs := fixture()
	prev, ok := Previous(recs[2], recs)
	require.True(t, ok)
	assert.Equal(t, "1", prev.ID)

	_, ok = Previous(recs[0], recs)
	assert.False(t, ok)
}

func TestIsRetestAndNewest(t *testing.T) {
	assert.False(t, IsRetest(fixture()[0]))
	assert.True(t, IsRetest(fixture()[2]))

	n, ok := Newest(fixture())
	require.True(t, ok)
	assert.Equal(t, "5", n.ID)

	_, ok = Newest(nil)
	assert.False(t, ok)
}

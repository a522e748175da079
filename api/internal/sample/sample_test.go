package sample

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestMergesDuplicateNames(t *testing.T) {
	got, err := Ingest([]Observation{
		{Name: "x", Count: 10, BoundingBoxes: []BoundingBox{{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}}},
		{Name: "y", Count: 1},
		{Name: " x ", Count: 5, BoundingBoxes: []BoundingBox{{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1}}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].Name)
	assert.Equal(t, 15, got[0].Count)
	assert.Len(t, got[0].BoundingBoxes, 2)
	assert.Equal(t, "y", got[1].Name)
}

func TestIngestIsStableOnMergedInput(t *testing.T) {
	once, err := Ingest([]Observation{{Name: "x", Count: 10}, {Name: "x", Count: 5}})
	require.NoError(t, err)
	twice, err := Ingest(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestIngestEmptyIsNotNil(t *testing.T) {
	got, err := Ingest(nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestIngestRejectsMalformed(t *testing.T) {
	cases := map[string][]Observation{
		"negative count": {{Name: "x", Count: -1}},
		"empty name":     {{Name: "  ", Count: 1}},
		"box over 1":     {{Name: "x", Count: 1, BoundingBoxes: []BoundingBox{{X: 1.2}}}},
		"box NaN":        {{Name: "x", Count: 1, BoundingBoxes: []BoundingBox{{Width: math.NaN()}}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Ingest(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestIngestDoesNotAliasInputBoxes(t *testing.T) {
	in := []Observation{{Name: "x", Count: 1, BoundingBoxes: []BoundingBox{{X: 0.1}}}}
	out, err := Ingest(in)
	require.NoError(t, err)
	out[0].BoundingBoxes[0].X = 0.9
	assert.Equal(t, 0.1, in[0].BoundingBoxes[0].X)
}

func TestPermissionDeniedIsPersistence(t *testing.T) {
	assert.True(t, errors.Is(ErrPermissionDenied, ErrPersistence))
	assert.Equal(t, "permission_denied", Kind(ErrPermissionDenied))
	assert.Equal(t, "persistence", Kind(ErrPersistence))
}

func TestSummaryAndTotals(t *testing.T) {
	obs := []Observation{{Name: "Microcystis", Count: 50}, {Name: "Anabaena", Count: 20}}
	assert.Equal(t, "Microcystis: 50, Anabaena: 20", Summary(obs))
	assert.Equal(t, 70, TotalCount(obs))
	assert.Equal(t, "", Summary(nil))
}

func TestSampleUnion(t *testing.T) {
	var s Sample = Pending{Record{ID: NewPendingID()}}
	assert.True(t, IsPending(s))
	assert.True(t, IsPendingID(ID(s)))

	s = Durable{Record{ID: "42"}}
	assert.False(t, IsPending(s))
	assert.Equal(t, "42", ID(s))
	assert.Equal(t, "", ID(nil))
}

func TestLocationDisplayName(t *testing.T) {
	assert.Equal(t, "Sanjay Lake", Location{Name: "Sanjay Lake"}.DisplayName())
	assert.Equal(t, "Sample from 28.6186, 77.3051", Location{Latitude: 28.6186, Longitude: 77.3051}.DisplayName())
}

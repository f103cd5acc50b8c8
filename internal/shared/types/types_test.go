package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewComplaintID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ComplaintID("GG-2026-00042"), NewComplaintID(2026, 42))
	assert.Equal(t, ComplaintID("GG-2026-123456"), NewComplaintID(2026, 123456))
}

func TestParseComplaintID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		wantErr bool
	}{
		{"GG-2026-00042", false},
		{"GG-2025-1", false},
		{"XX-2026-00042", true},
		{"GG-26-00042", true},
		{"GG-2026-0", true},
		{"GG-2026", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			_, err := ParseComplaintID(tt.in)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestNewDeterministicID(t *testing.T) {
	t.Parallel()

	a := NewDeterministicID("reward", "GG-2026-00001/vote/v1")
	b := NewDeterministicID("reward", "GG-2026-00001/vote/v1")
	c := NewDeterministicID("reward", "GG-2026-00001/vote/v2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	_, err := ParseID(a.String())
	require.NoError(t, err)
}

func TestGeoPointValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, GeoPoint{Lat: 12.97, Lng: 77.59}.Validate())
	assert.Error(t, GeoPoint{Lat: 91, Lng: 0}.Validate())
	assert.Error(t, GeoPoint{Lat: 0, Lng: -181}.Validate())
	assert.Error(t, GeoPoint{Lat: math.NaN(), Lng: math.NaN()}.Validate())
	assert.Error(t, GeoPoint{Lat: 0, Lng: math.Inf(1)}.Validate())
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	s, err := ParseSeverity(" high ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)

	_, err = ParseSeverity("urgent")
	assert.Error(t, err)
}

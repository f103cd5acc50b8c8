package evidence

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grievancegenie/platform/internal/shared/logging"
	"github.com/grievancegenie/platform/internal/shared/types"
)

var (
	testNow   = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	claimedAt = types.GeoPoint{Lat: 12.971600, Lng: 77.594600}
)

// pointNorth returns a point roughly meters north of p.
func pointNorth(p types.GeoPoint, meters float64) types.GeoPoint {
	return types.GeoPoint{Lat: p.Lat + meters/111_319.49, Lng: p.Lng}
}

func pngImage(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			v := uint8(x*8) ^ uint8(y*4) ^ seed
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeExtractor struct {
	exif EXIF
	err  error
}

func (f fakeExtractor) Extract([]byte) (EXIF, error) { return f.exif, f.err }

type fakeHasher struct {
	fp  Fingerprint
	err error
}

func (f fakeHasher) Fingerprint([]byte) (Fingerprint, error) { return f.fp, f.err }

type countingScorer struct {
	mu    sync.Mutex
	calls int
	score float64
	err   error
}

func (s *countingScorer) Score(context.Context, []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.score, s.err
}

func exifAt(p types.GeoPoint, ts time.Time) EXIF {
	return EXIF{Present: true, GPS: &p, Timestamp: &ts, Camera: "Pixel 8"}
}

func newTestValidator(scorer Scorer, ex Extractor, h Fingerprinter, idx DuplicateIndex, mutate ...func(*Policy)) *Validator {
	p := DefaultPolicy()
	p.ScorerTimeout = 200 * time.Millisecond
	for _, m := range mutate {
		m(&p)
	}
	return NewValidator(logging.Discard(), p, scorer, ex, h, idx, WithClock(func() time.Time { return testNow }))
}

package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/complaint/infrastructure"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/rewards"
	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/logging"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
	"github.com/grievancegenie/platform/internal/workforce"
)

var (
	start    = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	site     = types.GeoPoint{Lat: 12.9716, Lng: 77.5946}
	reporter = domain.Actor{ID: "citizen-1", Role: domain.RoleCitizen}
	officer  = domain.Actor{ID: "officer-1", Role: domain.RoleOfficer}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scorer returns a settable score, or err when set.
type scorer struct {
	mu    sync.Mutex
	score float64
	err   error
}

func (s *scorer) Score(context.Context, []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score, s.err
}

func (s *scorer) set(score float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.score, s.err = score, err
}

// gpsExtractor reports every photo as taken now at a settable position,
// the site by default.
type gpsExtractor struct {
	clock *clock

	mu  sync.Mutex
	gps types.GeoPoint
}

func (g *gpsExtractor) Extract([]byte) (evidence.EXIF, error) {
	g.mu.Lock()
	p := g.gps
	g.mu.Unlock()
	ts := g.clock.Now()
	return evidence.EXIF{Present: true, GPS: &p, Timestamp: &ts, Camera: "Pixel 8"}, nil
}

func (g *gpsExtractor) moveTo(p types.GeoPoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gps = p
}

// byteHasher derives a fingerprint from the image bytes so distinct images
// never look alike.
type byteHasher struct{}

func (byteHasher) Fingerprint(data []byte) (evidence.Fingerprint, error) {
	sum := sha256.Sum256(data)
	return evidence.Fingerprint(binary.BigEndian.Uint64(sum[:8])), nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	svc     *Service
	repo    *infrastructure.MemoryRepository
	clock   *clock
	scorer  *scorer
	exif    *gpsExtractor
	workers *workforce.Registry
	rewards *rewards.Ledger
	events  *recorder
	seed    uint8
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.Discard()
	h := &harness{
		repo:    infrastructure.NewMemoryRepository(),
		clock:   &clock{t: start},
		scorer:  &scorer{score: 0.1},
		workers: workforce.NewRegistry(log),
		rewards: rewards.NewLedger(log, rewards.NewMemoryStore()),
		events:  &recorder{},
	}

	h.exif = &gpsExtractor{clock: h.clock, gps: site}

	policy := evidence.DefaultPolicy()
	policy.ScorerTimeout = time.Second
	validator := evidence.NewValidator(log, policy, h.scorer, h.exif, byteHasher{},
		evidence.NewMemoryIndex(), evidence.WithClock(h.clock.Now))

	bus := events.NewLocalBus(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx, "*", "test", h.events.handle))

	h.svc = New(log, Deps{
		Repo:      h.repo,
		Validator: validator,
		Votes:     verification.NewLedger(log, verification.NewMemoryStore()),
		Consensus: verification.DefaultPolicy(),
		Rewards:   h.rewards,
		Workers:   h.workers,
		Bus:       bus,
	}, Config{
		ArchiveAfter:      30 * 24 * time.Hour,
		ValidationTimeout: 2 * time.Minute,
		SweepInterval:     time.Minute,
	}, WithClock(h.clock.Now))
	return h
}

func (h *harness) photo(t *testing.T) []byte {
	t.Helper()
	h.seed++
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			v := uint8(x*16) ^ uint8(y*8) ^ h.seed
			img.Set(x, y, color.RGBA{R: v, G: h.seed, B: 255 - v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (h *harness) report(t *testing.T, sev types.Severity) *domain.Complaint {
	t.Helper()
	c, err := h.svc.Report(context.Background(), reporter, domain.NewComplaint{
		Category:     "pothole",
		Severity:     sev,
		Description:  "Deep pothole outside the school gate",
		LocationText: "MG Road",
		Location:     site,
	})
	require.NoError(t, err)
	return c
}

// verifying reports a complaint and gets its before-photo accepted.
func (h *harness) verifying(t *testing.T, sev types.Severity) *domain.Complaint {
	t.Helper()
	c := h.report(t, sev)
	ev, err := h.svc.SubmitEvidence(context.Background(), reporter, c.ID, EvidenceInput{
		Kind:  evidence.KindBefore,
		Image: h.photo(t),
	})
	require.NoError(t, err)
	require.Equal(t, evidence.StatusAccepted, ev.Status)
	return h.get(t, c.ID)
}

func (h *harness) get(t *testing.T, id types.ComplaintID) *domain.Complaint {
	t.Helper()
	c, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) vote(t *testing.T, id types.ComplaintID, voter string, v verification.Verdict) VoteResult {
	t.Helper()
	res, err := h.svc.CastVote(context.Background(), domain.Actor{ID: voter, Role: domain.RoleCitizen}, id, v, nil)
	require.NoError(t, err)
	return res
}

func (h *harness) points(t *testing.T, user string) int {
	t.Helper()
	total, err := h.rewards.Total(context.Background(), user)
	require.NoError(t, err)
	return total
}

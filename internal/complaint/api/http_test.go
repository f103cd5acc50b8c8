package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievancegenie/platform/internal/audit"
	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/complaint/infrastructure"
	"github.com/grievancegenie/platform/internal/complaint/service"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/rewards"
	"github.com/grievancegenie/platform/internal/shared/auth"
	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/logging"
	"github.com/grievancegenie/platform/internal/shared/middleware"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
	"github.com/grievancegenie/platform/internal/workforce"
)

var site = types.GeoPoint{Lat: 12.9716, Lng: 77.5946}

const maxUpload = 1 << 20

type siteExtractor struct{}

func (siteExtractor) Extract([]byte) (evidence.EXIF, error) {
	p := site
	ts := time.Now()
	return evidence.EXIF{Present: true, GPS: &p, Timestamp: &ts}, nil
}

type fixture struct {
	server  *httptest.Server
	stream  *Stream
	workers *workforce.Registry

	mu    sync.Mutex
	score float64
	seed  uint8
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	f := &fixture{score: 0.1, workers: workforce.NewRegistry(log)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := events.NewLocalBus(log)
	t.Cleanup(bus.Close)

	trail := audit.NewTrail(log, audit.NewMemoryStore())
	require.NoError(t, trail.Subscribe(ctx, bus))
	f.stream = NewStream(log, []string{"*"})
	require.NoError(t, f.stream.Subscribe(ctx, bus))

	scorer := evidence.ScorerFunc(func(context.Context, []byte) (float64, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.score, nil
	})
	validator := evidence.NewValidator(log, evidence.DefaultPolicy(), scorer, siteExtractor{},
		evidence.NewPerceptionHasher(), evidence.NewMemoryIndex())

	ledger := rewards.NewLedger(log, rewards.NewMemoryStore())
	svc := service.New(log, service.Deps{
		Repo:      infrastructure.NewMemoryRepository(),
		Validator: validator,
		Votes:     verification.NewLedger(log, verification.NewMemoryStore()),
		Consensus: verification.DefaultPolicy(),
		Rewards:   ledger,
		Workers:   f.workers,
		Bus:       bus,
	}, service.Config{
		ArchiveAfter:      24 * time.Hour,
		ValidationTimeout: time.Minute,
		SweepInterval:     time.Minute,
	})

	r := chi.NewRouter()
	r.Mount("/ws", f.stream.StreamRoutes())
	r.Group(func(r chi.Router) {
		r.Use(auth.DevMiddleware)
		r.Use(middleware.BodyLimit(RequestLimit(maxUpload)))
		r.Mount("/api/v1", NewHandler(svc, f.workers, ledger, trail, maxUpload).Routes())
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) setScore(s float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.score = s
}

// photo renders a distinct PNG per call.
func (f *fixture) photo(t *testing.T) []byte {
	t.Helper()
	f.mu.Lock()
	f.seed += 37
	seed := f.seed
	f.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			v := uint8(x*int(seed)+y*y) ^ seed
			if (x/8+y/8+int(seed))%2 == 0 {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (f *fixture) do(t *testing.T, method, path, actor, role string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return f.send(t, req, actor, role)
}

func (f *fixture) upload(t *testing.T, id, actor, role, kind string, img []byte) (*http.Response, map[string]any) {
	t.Helper()
	return f.uploadForm(t, id, actor, role, map[string]string{"kind": kind}, img)
}

func (f *fixture) uploadForm(t *testing.T, id, actor, role string, fields map[string]string, img []byte) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("photo", "photo.png")
	require.NoError(t, err)
	_, err = part.Write(img)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/complaints/"+id+"/evidence", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.send(t, req, actor, role)
}

func (f *fixture) send(t *testing.T, req *http.Request, actor, role string) (*http.Response, map[string]any) {
	t.Helper()
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
		req.Header.Set("X-Actor-Role", role)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) report(t *testing.T) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/v1/complaints", "citizen-1", auth.RoleCitizen, ReportComplaintRequest{
		Category:     "pothole",
		Severity:     "high",
		Description:  "Deep pothole near the bus stop",
		LocationText: "MG Road",
		Location:     site,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body["id"].(string)
}

func TestReportAndGetComplaint(t *testing.T) {
	f := newFixture(t)
	id := f.report(t)
	assert.True(t, strings.HasPrefix(id, "GG-"))

	resp, body := f.do(t, http.MethodGet, "/api/v1/complaints/"+id, "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(domain.StatusReported), body["status"])

	resp, body = f.do(t, http.MethodGet, "/api/v1/complaints?status=reported", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["complaints"], 1)
}

func TestReportComplaint_Roles(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/complaints", "", "", ReportComplaintRequest{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/complaints", "worker-1", auth.RoleWorker, ReportComplaintRequest{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/v1/complaints", "citizen-1", auth.RoleCitizen, ReportComplaintRequest{
		Category: "pothole", Severity: "urgent", Description: "x", Location: site,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestGetComplaint_Errors(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/complaints/not-an-id", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/v1/complaints/GG-2026-00042", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/complaints?status=lost", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvidenceVotesAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	id := f.report(t)

	resp, body := f.upload(t, id, "citizen-1", auth.RoleCitizen, "before", f.photo(t))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	ev := body["evidence"].(map[string]any)
	assert.Equal(t, string(evidence.StatusAccepted), ev["status"])

	_, got := f.do(t, http.MethodGet, "/api/v1/complaints/"+id, "", "", nil)
	assert.Equal(t, string(domain.StatusVerifying), got["status"])

	// The reporter cannot vote on their own complaint.
	resp, _ = f.do(t, http.MethodPost, "/api/v1/complaints/"+id+"/votes", "citizen-1", auth.RoleCitizen, CastVoteRequest{Verdict: "yes"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/api/v1/complaints/"+id+"/votes", "citizen-2", auth.RoleCitizen, CastVoteRequest{Verdict: "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	stale := uint64(1)
	resp, body = f.do(t, http.MethodPost, "/api/v1/complaints/"+id+"/votes", "citizen-2", auth.RoleCitizen, CastVoteRequest{Verdict: "yes", Version: &stale})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "STALE_VERSION", body["code"])

	resp, body = f.do(t, http.MethodPost, "/api/v1/complaints/"+id+"/votes", "citizen-2", auth.RoleCitizen, CastVoteRequest{Verdict: "yes"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	tally := body["tally"].(map[string]any)
	assert.EqualValues(t, 1, tally["yes"])

	resp, body = f.do(t, http.MethodGet, "/api/v1/leaderboard", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := body["leaderboard"].([]any)
	require.Len(t, board, 2)
	top := board[0].(map[string]any)
	assert.Equal(t, "citizen-1", top["user_id"])
	assert.EqualValues(t, rewards.PointsReportVerified, top["points"])
}

func TestSubmitEvidence_RejectedCarriesRecord(t *testing.T) {
	f := newFixture(t)
	id := f.report(t)
	f.setScore(0.97)

	resp, body := f.upload(t, id, "citizen-1", auth.RoleCitizen, "before", f.photo(t))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "EVIDENCE_REJECTED", body["code"])
	ev := body["evidence"].(map[string]any)
	assert.Equal(t, string(evidence.StatusRejected), ev["status"])
	assert.Contains(t, body["messages"], evidence.Message(evidence.ReasonAIGenerated))

	resp, body = f.upload(t, id, "citizen-1", auth.RoleCitizen, "sideways", f.photo(t))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
}

func TestSubmitEvidence_NonFiniteLocation(t *testing.T) {
	f := newFixture(t)
	id := f.report(t)

	for _, fields := range []map[string]string{
		{"kind": "before", "lat": "NaN", "lng": "NaN"},
		{"kind": "before", "lat": "12.97", "lng": "+Inf"},
	} {
		resp, body := f.uploadForm(t, id, "citizen-1", auth.RoleCitizen, fields, f.photo(t))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
	}

	resp, body := f.do(t, http.MethodGet, "/api/v1/complaints/"+id, "citizen-1", auth.RoleCitizen, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["evidence"])
	assert.Equal(t, string(domain.StatusReported), body["status"])
}

func TestSubmitEvidence_UploadLimit(t *testing.T) {
	f := newFixture(t)
	id := f.report(t)

	// A photo at the limit plus its form fields passes the router body limit.
	img := f.photo(t)
	img = append(img, make([]byte, maxUpload-len(img))...)
	resp, body := f.upload(t, id, "citizen-1", auth.RoleCitizen, "before", img)
	assert.NotEqual(t, http.StatusRequestEntityTooLarge, resp.StatusCode, body)
	assert.NotEqual(t, "PAYLOAD_TOO_LARGE", body["code"])

	resp, body = f.upload(t, id, "citizen-1", auth.RoleCitizen, "before", append(img, 0))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, body)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", body["code"])
}

func TestWorkersAndAssignment(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/workers", "citizen-1", auth.RoleCitizen, RegisterWorkerRequest{Name: "Asha"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/v1/workers", "officer-1", auth.RoleOfficer, RegisterWorkerRequest{Name: "Asha"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	workerID := body["id"].(string)
	assert.Equal(t, "available", body["availability"])

	resp, _ = f.do(t, http.MethodPut, "/api/v1/workers/"+workerID+"/availability", "officer-1", auth.RoleOfficer, AvailabilityRequest{Availability: "sleeping"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPut, "/api/v1/workers/"+workerID+"/availability", "officer-1", auth.RoleOfficer, AvailabilityRequest{Availability: "off_duty"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "off_duty", body["availability"])

	// Assigning before the complaint is verified is an invalid transition.
	id := f.report(t)
	resp, body = f.do(t, http.MethodPost, "/api/v1/complaints/"+id+"/assign", "officer-1", auth.RoleOfficer, AssignWorkerRequest{WorkerID: workerID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
}

func TestAuditVerify(t *testing.T) {
	f := newFixture(t)
	f.report(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/audit/verify", "citizen-1", auth.RoleCitizen, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/v1/audit/verify", "officer-1", auth.RoleOfficer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.EqualValues(t, 1, body["checked"])
}

func TestStream_PushesTimeline(t *testing.T) {
	f := newFixture(t)
	id := f.report(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/complaints/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.stream.Watchers(id) == 1 }, time.Second, 10*time.Millisecond)

	resp, body := f.upload(t, id, "citizen-1", auth.RoleCitizen, "before", f.photo(t))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	var seen []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !contains(seen, "complaint.evidence_accepted") {
		var e events.Event
		require.NoError(t, conn.ReadJSON(&e))
		assert.Equal(t, id, e.Subject)
		seen = append(seen, e.Type)
	}
	assert.Contains(t, seen, service.EventEvidenceDecided)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

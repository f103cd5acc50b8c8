package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/grievancegenie/platform/internal/audit"
	"github.com/grievancegenie/platform/internal/complaint/domain"
	"github.com/grievancegenie/platform/internal/complaint/service"
	"github.com/grievancegenie/platform/internal/evidence"
	"github.com/grievancegenie/platform/internal/rewards"
	"github.com/grievancegenie/platform/internal/shared/auth"
	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
	"github.com/grievancegenie/platform/internal/shared/types"
	"github.com/grievancegenie/platform/internal/verification"
	"github.com/grievancegenie/platform/internal/workforce"
)

const (
	defaultPageSize   = 50
	maxPageSize       = 200
	defaultLeaderSize = 10
	maxLeaderSize     = 100
)

// ChainVerifier re-walks the audit chain.
type ChainVerifier interface {
	Verify(ctx context.Context) (*audit.VerifyResult, error)
}

// Handler provides the HTTP surface of the complaint lifecycle.
type Handler struct {
	svc       *service.Service
	workers   *workforce.Registry
	rewards   *rewards.Ledger
	audit     ChainVerifier
	maxUpload int64
	voteLimit func(http.Handler) http.Handler
}

type HandlerOption func(*Handler)

// formOverhead covers multipart headers and the text fields sent with a photo.
const formOverhead = 1 << 20

// RequestLimit is the largest request body an evidence upload of maxUpload
// bytes may need. Outer body limits must be at least this large.
func RequestLimit(maxUpload int64) int64 {
	return maxUpload + formOverhead
}

// WithVoteLimiter throttles POST /complaints/{id}/votes.
func WithVoteLimiter(mw func(http.Handler) http.Handler) HandlerOption {
	return func(h *Handler) { h.voteLimit = mw }
}

func NewHandler(svc *service.Service, workers *workforce.Registry, ledger *rewards.Ledger, verifier ChainVerifier, maxUpload int64, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:       svc,
		workers:   workers,
		rewards:   ledger,
		audit:     verifier,
		maxUpload: maxUpload,
		voteLimit: func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers everything under /api/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/complaints", func(r chi.Router) {
		r.Get("/", h.ListComplaints)
		r.With(auth.RequireRoles(auth.RoleCitizen)).Post("/", h.ReportComplaint)

		r.Route("/{complaintID}", func(r chi.Router) {
			r.Get("/", h.GetComplaint)
			r.Get("/tally", h.GetTally)

			r.Post("/evidence", h.SubmitEvidence)
			r.With(auth.RequireRoles(auth.RoleCitizen), h.voteLimit).Post("/votes", h.CastVote)

			r.With(auth.RequireRoles(auth.RoleOfficer)).Post("/review", h.OfficerDecision)
			r.With(auth.RequireRoles(auth.RoleOfficer)).Post("/assign", h.AssignWorker)
			r.With(auth.RequireRoles(auth.RoleWorker)).Post("/start", h.StartWork)

			r.With(auth.RequireRoles(auth.RoleCitizen)).Post("/rating", h.SubmitRating)
			r.With(auth.RequireRoles(auth.RoleCitizen)).Post("/share", h.ShareSuccess)
		})
	})

	r.Route("/workers", func(r chi.Router) {
		r.Get("/", h.ListWorkers)
		r.With(auth.RequireRoles(auth.RoleOfficer)).Post("/", h.RegisterWorker)
		r.With(auth.RequireRoles(auth.RoleOfficer)).Put("/{workerID}/availability", h.SetAvailability)
	})

	r.Get("/leaderboard", h.Leaderboard)
	r.With(auth.RequireRoles(auth.RoleOfficer)).Get("/audit/verify", h.VerifyAudit)

	return r
}

// --- Request/Response types ---

type ReportComplaintRequest struct {
	Category     string         `json:"category"`
	Severity     string         `json:"severity"`
	Description  string         `json:"description"`
	LocationText string         `json:"location_text"`
	Location     types.GeoPoint `json:"location"`
}

type CastVoteRequest struct {
	Verdict string  `json:"verdict"`
	Version *uint64 `json:"version,omitempty"`
}

type OfficerDecisionRequest struct {
	Approve bool    `json:"approve"`
	Note    string  `json:"note,omitempty"`
	Version *uint64 `json:"version,omitempty"`
}

type AssignWorkerRequest struct {
	WorkerID string  `json:"worker_id"`
	Version  *uint64 `json:"version,omitempty"`
}

type VersionRequest struct {
	Version *uint64 `json:"version,omitempty"`
}

type RatingRequest struct {
	Overall       int      `json:"overall"`
	Speed         int      `json:"speed"`
	Quality       int      `json:"quality"`
	Communication int      `json:"communication"`
	Tags          []string `json:"tags,omitempty"`
	Version       *uint64  `json:"version,omitempty"`
}

type ShareRequest struct {
	Channel string `json:"channel"`
}

type RegisterWorkerRequest struct {
	Name string `json:"name"`
}

type AvailabilityRequest struct {
	Availability string `json:"availability"`
}

// EvidenceResponse carries the stored record and the citizen-facing
// explanation of each reason code.
type EvidenceResponse struct {
	Evidence evidence.PhotoEvidence `json:"evidence"`
	Messages []string               `json:"messages,omitempty"`
}

// --- Handlers ---

func (h *Handler) ReportComplaint(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ReportComplaintRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sev, err := types.ParseSeverity(req.Severity)
	if err != nil {
		writeError(w, apperrors.Validation("invalid complaint", map[string]string{"severity": err.Error()}))
		return
	}

	c, err := h.svc.Report(r.Context(), actor, domain.NewComplaint{
		Category:     req.Category,
		Severity:     sev,
		Description:  req.Description,
		LocationText: req.LocationText,
		Location:     req.Location,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	id, err := complaintID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ListFilter{
		ReporterID: q.Get("reporter"),
		Limit:      defaultPageSize,
	}
	if s := q.Get("status"); s != "" {
		status, ok := domain.ParseStatus(s)
		if !ok {
			writeError(w, apperrors.BadRequest("unknown status "+strconv.Quote(s)))
			return
		}
		filter.Status = &status
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		filter.Limit = min(l, maxPageSize)
	}
	if o, err := strconv.Atoi(q.Get("offset")); err == nil && o > 0 {
		filter.Offset = o
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Complaint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"complaints": list,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

// SubmitEvidence accepts multipart form fields photo, kind, lat and lng.
func (h *Handler) SubmitEvidence(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := complaintID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, RequestLimit(h.maxUpload))
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperrors.PayloadTooLarge(h.maxUpload))
			return
		}
		writeError(w, apperrors.BadRequest("expected multipart form with a photo field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := service.EvidenceInput{Kind: evidence.Kind(r.FormValue("kind"))}
	if in.Kind == "" {
		in.Kind = evidence.KindBefore
	}
	if !in.Kind.Valid() {
		writeError(w, apperrors.Validation("invalid evidence", map[string]string{"kind": "must be before or after"}))
		return
	}
	if lat, lng := r.FormValue("lat"), r.FormValue("lng"); lat != "" || lng != "" {
		p, err := parsePoint(lat, lng)
		if err != nil {
			writeError(w, err)
			return
		}
		in.ClaimedLocation = &p
	}
	if v := r.FormValue("version"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, apperrors.Validation("invalid evidence", map[string]string{"version": "must be an integer"}))
			return
		}
		in.Version = &n
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, apperrors.Validation("invalid evidence", map[string]string{"photo": "required"}))
		return
	}
	defer file.Close()
	in.Image, err = io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		writeError(w, apperrors.BadRequest("could not read photo"))
		return
	}
	if int64(len(in.Image)) > h.maxUpload {
		writeError(w, apperrors.PayloadTooLarge(h.maxUpload))
		return
	}

	ev, err := h.svc.SubmitEvidence(r.Context(), actor, id, in)
	resp := EvidenceResponse{Evidence: ev, Messages: messagesFor(ev)}
	if err != nil {
		var appErr *apperrors.AppError
		if ev.ID != "" && errors.As(err, &appErr) {
			writeJSON(w, appErr.HTTPStatus, map[string]any{
				"error":     appErr.Message,
				"code":      appErr.Code,
				"retryable": appErr.Retryable(),
				"evidence":  resp.Evidence,
				"messages":  resp.Messages,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req CastVoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	verdict, err := verification.ParseVerdict(req.Verdict)
	if err != nil {
		writeError(w, apperrors.Validation("invalid vote", map[string]string{"verdict": "must be yes, no or unsure"}))
		return
	}

	res, err := h.svc.CastVote(r.Context(), actor, id, verdict, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetTally(w http.ResponseWriter, r *http.Request) {
	id, err := complaintID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.svc.Tally(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) OfficerDecision(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req OfficerDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.svc.OfficerDecision(r.Context(), actor, id, req.Approve, req.Note, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) AssignWorker(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req AssignWorkerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workerID, err := types.ParseID(req.WorkerID)
	if err != nil {
		writeError(w, apperrors.Validation("invalid assignment", map[string]string{"worker_id": "must be a UUID"}))
		return
	}
	c, err := h.svc.AssignWorker(r.Context(), actor, id, workerID, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) StartWork(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req VersionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.svc.StartWork(r.Context(), actor, id, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req RatingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.svc.SubmitRating(r.Context(), actor, id, domain.Rating{
		Overall:       req.Overall,
		Speed:         req.Speed,
		Quality:       req.Quality,
		Communication: req.Communication,
		Tags:          req.Tags,
	}, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ShareSuccess(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req ShareRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.svc.ShareSuccess(r.Context(), actor, id, req.Channel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"workers": h.workers.List(),
		"queued":  h.workers.Queued(),
	})
}

func (h *Handler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req RegisterWorkerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	wk, err := h.workers.Register(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	// A new worker may be able to take a queued complaint right away.
	if _, err := h.svc.DrainQueue(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if current, err := h.workers.Get(wk.ID); err == nil {
		wk = current
	}
	writeJSON(w, http.StatusCreated, wk)
}

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "workerID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid worker id"))
		return
	}
	var req AvailabilityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := workforce.ParseAvailability(req.Availability)
	if err != nil {
		writeError(w, apperrors.Validation("invalid availability", map[string]string{"availability": err.Error()}))
		return
	}
	wk, err := h.workers.SetAvailability(id, a)
	if err != nil {
		writeError(w, err)
		return
	}
	if a == workforce.Available {
		if _, err := h.svc.DrainQueue(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		if current, err := h.workers.Get(id); err == nil {
			wk = current
		}
	}
	writeJSON(w, http.StatusOK, wk)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	n := defaultLeaderSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		n = min(l, maxLeaderSize)
	}
	top, err := h.rewards.Leaderboard(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	if top == nil {
		top = []rewards.Standing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": top})
}

func (h *Handler) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	result, err := h.audit.Verify(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

// --- Helpers ---

// target resolves the acting user and the complaint path parameter,
// writing the error response when either is missing.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (domain.Actor, types.ComplaintID, bool) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return domain.Actor{}, "", false
	}
	id, err := complaintID(r)
	if err != nil {
		writeError(w, err)
		return domain.Actor{}, "", false
	}
	return actor, id, true
}

func actorFrom(r *http.Request) (domain.Actor, error) {
	user := auth.GetUser(r.Context())
	if user == nil {
		return domain.Actor{}, apperrors.Unauthorized("authentication required")
	}
	return domain.Actor{ID: user.ID, Role: user.PrimaryRole()}, nil
}

func complaintID(r *http.Request) (types.ComplaintID, error) {
	id, err := types.ParseComplaintID(chi.URLParam(r, "complaintID"))
	if err != nil {
		return "", apperrors.BadRequest(err.Error())
	}
	return id, nil
}

func parsePoint(lat, lng string) (types.GeoPoint, error) {
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	ln, err2 := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err1 != nil || err2 != nil {
		return types.GeoPoint{}, apperrors.Validation("invalid evidence", map[string]string{"location": "lat and lng must both be numbers"})
	}
	p := types.GeoPoint{Lat: la, Lng: ln}
	if err := p.Validate(); err != nil {
		return types.GeoPoint{}, apperrors.Validation("invalid evidence", map[string]string{"location": err.Error()})
	}
	return p, nil
}

func messagesFor(ev evidence.PhotoEvidence) []string {
	if len(ev.ReasonCodes) == 0 {
		return nil
	}
	out := make([]string, 0, len(ev.ReasonCodes))
	for _, code := range ev.ReasonCodes {
		out = append(out, evidence.Message(code))
	}
	return out
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	return nil
}

// decodeOptional tolerates an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperrors.BadRequest("invalid request body")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.HTTPStatus, map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

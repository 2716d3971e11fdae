// Package api exposes HTTP handlers for the activity service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/auth"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
	"github.com/GreenMint-Hub/GreenMintBackend/internal/persistence"
)

const defaultMaxUploadBytes = 10 << 20

// Handler coordinates HTTP requests with the domain service and voting engine.
type Handler struct {
	service        *domain.Service
	voting         *domain.VotingEngine
	maxUploadBytes int64
}

// NewHandler builds a Handler. maxUploadBytes bounds media submissions; zero
// selects 10 MiB.
func NewHandler(service *domain.Service, voting *domain.VotingEngine, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{service: service, voting: voting, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/activities/detect", h.detect)
	mux.HandleFunc("POST /v1/activities", h.recordSensor)
	mux.HandleFunc("GET /v1/activities", h.listActivities)
	mux.HandleFunc("POST /v1/activities/log", h.logManual)
	mux.HandleFunc("POST /v1/activities/media", h.submitMedia)
	mux.HandleFunc("GET /v1/activities/community", h.communityFeed)
	mux.HandleFunc("GET /v1/activities/stats", h.userStats)
	mux.HandleFunc("GET /v1/activities/{id}", h.getActivity)
	mux.HandleFunc("POST /v1/activities/{id}/votes", h.castVote)
	mux.HandleFunc("PATCH /v1/activities/{id}/status", h.updateStatus)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) detect(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	var req TraceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	strategy := r.URL.Query().Get("strategy")
	if strategy == "" {
		strategy = req.Strategy
	}

	det, err := h.service.Detect(req.SensorData, strategy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetectionView(det))
}

func (h *Handler) recordSensor(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req TraceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	activity, det, err := h.service.RecordSensorActivity(r.Context(), domain.SensorInput{
		UserID:   claims.Subject,
		Samples:  req.SensorData,
		Strategy: req.Strategy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordActivityResponse{
		Activity:  toActivityView(*activity),
		Detection: toDetectionView(det),
	})
}

func (h *Handler) logManual(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req ManualActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	activity, err := h.service.LogManualActivity(r.Context(), domain.ManualInput{
		UserID:      claims.Subject,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Points:      req.Points,
		CarbonSaved: req.CO2Saved,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) submitMedia(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "file is required")
		return
	}
	defer file.Close()
	if header.Size > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read file")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	activity, err := h.service.SubmitMediaActivity(r.Context(), domain.MediaInput{
		UserID:      claims.Subject,
		ActionType:  r.FormValue("actionType"),
		Description: r.FormValue("description"),
		Data:        data,
		ContentType: contentType,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	activity, err := h.service.GetActivity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = claims.Subject
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivitiesByUser(r.Context(), userID, cursor, parseLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      toActivityViews(activities),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) communityFeed(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activities, err := h.service.CommunityFeed(r.Context(), claims.Subject, parseLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toActivityViews(activities)})
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	stats, err := h.service.UserStats(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalCarbonSaved: stats.TotalCarbonSaved,
		TotalPoints:      stats.TotalPoints,
		TotalActivities:  stats.TotalActivities,
		Recent:           toActivityViews(stats.Recent),
	})
}

func (h *Handler) castVote(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeVotesWrite)
	if !ok {
		return
	}

	var req VoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := h.voting.CastVote(r.Context(), r.PathValue("id"), claims.Subject, domain.VoteValue(strings.ToLower(req.Value)))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VoteResponse{
		Activity:     toActivityView(*outcome.Activity),
		Counted:      outcome.Counted,
		Transitioned: outcome.Transitioned,
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeActivitiesAdmin); !ok {
		return
	}

	var req StatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	activity, err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

// authorize requires a bearer identity holding any of the scopes.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func parseLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 20
}

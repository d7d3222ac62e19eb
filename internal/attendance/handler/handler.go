package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tally/internal/attendance/models"
	"tally/internal/attendance/service"
	"tally/internal/pseudonym"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
	"tally/pkg/platform/middleware/auth"
	"tally/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mock_service.go -package=mocks Service

// Service is the attendance behaviour the handler exposes.
type Service interface {
	Salt(ctx context.Context, classID id.ClassID, sessionStartISO string) (pseudonym.Salt, error)
	RecordAttendance(ctx context.Context, req models.TapRequest) (*models.TapResult, error)
	CloseSession(ctx context.Context, req service.CloseRequest) (*models.CloseResult, error)
}

// Handler serves the device and operator attendance endpoints.
type Handler struct {
	service    Service
	logger     *slog.Logger
	deviceAuth func(http.Handler) http.Handler
	adminAuth  func(http.Handler) http.Handler
}

// New constructs the handler. deviceAuth guards tap reader routes and
// adminAuth guards session close.
func New(svc Service, logger *slog.Logger, deviceAuth, adminAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:    svc,
		logger:     logger,
		deviceAuth: deviceAuth,
		adminAuth:  adminAuth,
	}
}

// Register mounts attendance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.deviceAuth)
		r.Get("/v1/salt", h.HandleSalt)
		r.Post("/v1/attendance", h.HandleRecordAttendance)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.adminAuth)
		r.Post("/v1/sessions/close", h.HandleCloseSession)
	})
}

// HandleSalt handles GET /v1/salt?class_id=&session_start=.
func (h *Handler) HandleSalt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	classID, err := id.ParseClassID(r.URL.Query().Get("class_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := auth.AuthorizeClass(ctx, classID); err != nil {
		h.logger.WarnContext(ctx, "salt requested for foreign class",
			"request_id", requestID,
			"device_id", requestcontext.DeviceID(ctx),
			"class_id", classID,
		)
		httputil.WriteError(w, err)
		return
	}

	sessionStart := strings.TrimSpace(r.URL.Query().Get("session_start"))
	salt, err := h.service.Salt(ctx, classID, sessionStart)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, SaltResponse{
		ClassID:      classID.String(),
		SessionStart: sessionStart,
		Salt:         salt.Hex(),
	})
}

// HandleRecordAttendance handles POST /v1/attendance.
func (h *Handler) HandleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RecordAttendanceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := auth.AuthorizeClass(ctx, req.classID); err != nil {
		h.logger.WarnContext(ctx, "tap rejected for foreign class",
			"request_id", requestID,
			"device_id", requestcontext.DeviceID(ctx),
			"class_id", req.classID,
		)
		httputil.WriteError(w, err)
		return
	}

	at := req.eventTime
	if at.IsZero() {
		at = requestcontext.Now(ctx)
	}
	result, err := h.service.RecordAttendance(ctx, models.TapRequest{
		ClassID:        req.classID,
		SessionID:      req.sessionID,
		Pseudonym:      req.pseudonym,
		CardToken:      req.CardToken,
		EventTimestamp: at,
	})
	if err != nil {
		h.logError(ctx, "failed to record attendance", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordAttendanceResponse(result))
}

// HandleCloseSession handles POST /v1/sessions/close. Per-absentee failures
// are reported in the body of a 200 response.
func (h *Handler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[CloseSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.CloseSession(ctx, service.CloseRequest{
		ClassID:   req.classID,
		SessionID: req.sessionID,
	})
	if err != nil {
		h.logError(ctx, "failed to close session", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session close completed",
		"request_id", requestID,
		"class_id", result.ClassID,
		"session_id", result.SessionID,
		"marked_absent", result.MarkedAbsent,
		"failures", len(result.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toCloseSessionResponse(result))
}

// logError logs client errors at warn and everything else at error.
func (h *Handler) logError(ctx context.Context, msg, requestID string, err error) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest,
		dErrors.CodeNotFound, dErrors.CodeForbidden:
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"error", err,
	)
}

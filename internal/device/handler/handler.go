// Package handler exposes operator endpoints for issuing and revoking tap
// reader tokens.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	jwttoken "tally/internal/jwt_token"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
	"tally/pkg/requestcontext"
)

// Issuer signs and parses device tokens.
type Issuer interface {
	GenerateDeviceToken(deviceID id.DeviceID, classID id.ClassID, expiresIn time.Duration) (string, error)
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// Revoker records revoked token IDs.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

type Handler struct {
	issuer    Issuer
	revoker   Revoker
	logger    *slog.Logger
	adminAuth func(http.Handler) http.Handler
	maxTTL    time.Duration
}

// New constructs the handler. maxTTL caps issued token lifetimes and is the
// default revocation lifetime.
func New(issuer Issuer, revoker Revoker, logger *slog.Logger, adminAuth func(http.Handler) http.Handler, maxTTL time.Duration) *Handler {
	return &Handler{
		issuer:    issuer,
		revoker:   revoker,
		logger:    logger,
		adminAuth: adminAuth,
		maxTTL:    maxTTL,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.adminAuth)
		r.Post("/v1/devices/tokens", h.HandleIssueToken)
		r.Post("/v1/devices/revoke", h.HandleRevokeToken)
	})
}

// HandleIssueToken handles POST /v1/devices/tokens.
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	ttl := req.ttl(h.maxTTL)

	token, err := h.issuer.GenerateDeviceToken(req.deviceID, req.classID, ttl)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue device token",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	claims, err := h.issuer.ValidateToken(token)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "issued token failed validation"))
		return
	}

	h.logger.InfoContext(ctx, "device token issued",
		"request_id", requestID,
		"device_id", req.deviceID,
		"class_id", req.classID,
		"token_id", claims.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, IssueTokenResponse{
		Token:     token,
		TokenID:   claims.ID,
		DeviceID:  req.deviceID.String(),
		ClassID:   req.classID.String(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	})
}

// HandleRevokeToken handles POST /v1/devices/revoke.
func (h *Handler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.revoker.Revoke(ctx, req.TokenID, req.ttl(h.maxTTL)); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke device token",
			"request_id", requestID,
			"token_id", req.TokenID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke token"))
		return
	}

	h.logger.InfoContext(ctx, "device token revoked",
		"request_id", requestID,
		"token_id", req.TokenID,
	)
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"tally/internal/device/revocation"
	jwttoken "tally/internal/jwt_token"
	"tally/pkg/testutil"
)

type DeviceHandlerSuite struct {
	suite.Suite
	now     time.Time
	jwt     *jwttoken.JWTService
	revoked *revocation.InMemoryStore
	router  chi.Router
}

func TestDeviceHandlerSuite(t *testing.T) {
	suite.Run(t, new(DeviceHandlerSuite))
}

func (s *DeviceHandlerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.jwt = jwttoken.NewJWTService("signing-key", "tally", jwttoken.WithClock(clock))
	s.revoked = revocation.NewInMemoryStore(revocation.WithClock(clock))
	s.router = chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	New(s.jwt, s.revoked, slog.New(slog.NewTextHandler(io.Discard, nil)), passthrough, 24*time.Hour).Register(s.router)
}

func (s *DeviceHandlerSuite) TestIssueToken() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/devices/tokens", map[string]any{
		"device_id":   "reader-7",
		"class_id":    "CS101",
		"ttl_seconds": 3600,
	})
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	resp := testutil.UnmarshalResponse[IssueTokenResponse](s.T(), rr)
	s.Equal("reader-7", resp.DeviceID)
	s.Equal("CS101", resp.ClassID)
	s.Equal(s.now.Add(time.Hour), resp.ExpiresAt)
	s.NotEmpty(resp.TokenID)

	claims, err := s.jwt.ValidateToken(resp.Token)
	s.Require().NoError(err)
	s.Equal("reader-7", claims.Subject)
	s.Equal("CS101", claims.ClassID)
}

func (s *DeviceHandlerSuite) TestIssueTokenCapsLifetime() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/devices/tokens", map[string]any{
		"device_id":   "reader-7",
		"ttl_seconds": int64((72 * time.Hour).Seconds()),
	})
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code)
	resp := testutil.UnmarshalResponse[IssueTokenResponse](s.T(), rr)
	s.Equal(s.now.Add(24*time.Hour), resp.ExpiresAt)
	s.Empty(resp.ClassID)
}

func (s *DeviceHandlerSuite) TestIssueTokenValidation() {
	cases := map[string]string{
		"missing device": `{}`,
		"bad class":      `{"device_id":"r","class_id":"a:b"}`,
		"negative ttl":   `{"device_id":"r","ttl_seconds":-1}`,
	}
	for name, body := range cases {
		s.Run(name, func() {
			req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/devices/tokens", body)
			s.Equal(http.StatusBadRequest, testutil.DoRequest(s.router, req).Code)
		})
	}
}

func (s *DeviceHandlerSuite) TestRevokeToken() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/devices/revoke", `{"token_id":"jti-1"}`)
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusNoContent, rr.Code)

	revoked, err := s.revoked.IsRevoked(context.Background(), "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	s.now = s.now.Add(25 * time.Hour)
	revoked, err = s.revoked.IsRevoked(context.Background(), "jti-1")
	s.Require().NoError(err)
	s.False(revoked, "revocation outlives no token")

	req = testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/devices/revoke", `{"token_id":" "}`)
	testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest, "validation_error")
}

// Package jwttoken issues and validates HS256 device tokens for tap readers.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	authmw "tally/pkg/platform/middleware/auth"
)

// Claims represents the JWT claims carried by a device token.
type Claims struct {
	// ClassID restricts the device to one class when set.
	ClassID string `json:"cls,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles device token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithClock overrides the clock used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewJWTService(signingKey string, issuer string, opts ...Option) *JWTService {
	s := &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateDeviceToken signs a token for deviceID. An empty classID yields an
// unrestricted token.
func (s *JWTService) GenerateDeviceToken(deviceID id.DeviceID, classID id.ClassID, expiresIn time.Duration) (string, error) {
	now := s.now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ClassID: classID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign device token")
	}
	return signedToken, nil
}

// ValidateToken parses and verifies a device token.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if _, err := id.ParseDeviceID(claims.Subject); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	if claims.ClassID != "" {
		if _, err := id.ParseClassID(claims.ClassID); err != nil {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token class")
		}
	}
	return claims, nil
}

// DeviceValidator adapts JWTService to the device middleware.
type DeviceValidator struct {
	service *JWTService
}

func NewDeviceValidator(service *JWTService) *DeviceValidator {
	return &DeviceValidator{service: service}
}

func (a *DeviceValidator) ValidateToken(tokenString string) (*authmw.DeviceClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.DeviceClaims{
		DeviceID: id.DeviceID(claims.Subject),
		ClassID:  id.ClassID(claims.ClassID),
		TokenID:  claims.ID,
	}, nil
}

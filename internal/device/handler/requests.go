package handler

import (
	"strings"
	"time"

	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

type IssueTokenRequest struct {
	DeviceID   string `json:"device_id"`
	ClassID    string `json:"class_id,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`

	deviceID id.DeviceID
	classID  id.ClassID
}

func (r *IssueTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.deviceID, err = id.ParseDeviceID(r.DeviceID); err != nil {
		return err
	}
	if strings.TrimSpace(r.ClassID) != "" {
		if r.classID, err = id.ParseClassID(r.ClassID); err != nil {
			return err
		}
	}
	if r.TTLSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "ttl_seconds must not be negative")
	}
	return nil
}

// ttl returns the requested lifetime capped at limit.
func (r *IssueTokenRequest) ttl(limit time.Duration) time.Duration {
	return capTTL(r.TTLSeconds, limit)
}

type RevokeTokenRequest struct {
	TokenID    string `json:"token_id"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

func (r *RevokeTokenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.TokenID = strings.TrimSpace(r.TokenID)
	if r.TokenID == "" {
		return dErrors.New(dErrors.CodeValidation, "token_id is required")
	}
	if len(r.TokenID) > 128 {
		return dErrors.New(dErrors.CodeValidation, "token_id must be at most 128 characters")
	}
	if r.TTLSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "ttl_seconds must not be negative")
	}
	return nil
}

func (r *RevokeTokenRequest) ttl(limit time.Duration) time.Duration {
	return capTTL(r.TTLSeconds, limit)
}

func capTTL(seconds int64, limit time.Duration) time.Duration {
	requested := time.Duration(seconds) * time.Second
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

package handler

import "time"

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	DeviceID  string    `json:"device_id"`
	ClassID   string    `json:"class_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

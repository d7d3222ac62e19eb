package testutil

import (
	"net/http"
	"time"

	id "tally/pkg/domain"
	"tally/pkg/requestcontext"
)

// WithDevice adds an authenticated device to the request context, as the
// device middleware would. classID may be empty for an unrestricted device.
func WithDevice(req *http.Request, deviceID, classID string) *http.Request {
	ctx := requestcontext.WithDevice(req.Context(), id.DeviceID(deviceID), id.ClassID(classID))
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

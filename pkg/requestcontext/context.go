// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and handlers read them without importing
// net/http concerns.
//
// Usage in services (read values):
//
//	deviceID := requestcontext.DeviceID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithDevice(ctx, "reader-7", "")
package requestcontext

import (
	"context"
	"time"

	id "tally/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	deviceIDKey    struct{}
	deviceClassKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	clientSWKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyDeviceID    = deviceIDKey{}
	ContextKeyDeviceClass = deviceClassKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyClientSW    = clientSWKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Device context
// -----------------------------------------------------------------------------

// DeviceID retrieves the authenticated tap reader from the context.
func DeviceID(ctx context.Context) id.DeviceID {
	if deviceID, ok := ctx.Value(ContextKeyDeviceID).(id.DeviceID); ok {
		return deviceID
	}
	return ""
}

// DeviceClass retrieves the class a device token is restricted to. Empty means
// the device may report for any class.
func DeviceClass(ctx context.Context) id.ClassID {
	if classID, ok := ctx.Value(ContextKeyDeviceClass).(id.ClassID); ok {
		return classID
	}
	return ""
}

// WithDevice injects an authenticated device and its optional class restriction.
func WithDevice(ctx context.Context, deviceID id.DeviceID, classID id.ClassID) context.Context {
	ctx = context.WithValue(ctx, ContextKeyDeviceID, deviceID)
	return context.WithValue(ctx, ContextKeyDeviceClass, classID)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// ClientSoftware retrieves the parsed client software summary, e.g.
// "Chrome/120.0 (Linux x86_64)".
func ClientSoftware(ctx context.Context) string {
	if sw, ok := ctx.Value(ContextKeyClientSW).(string); ok {
		return sw
	}
	return ""
}

// WithClientSoftware injects the parsed client software summary.
func WithClientSoftware(ctx context.Context, software string) context.Context {
	return context.WithValue(ctx, ContextKeyClientSW, software)
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

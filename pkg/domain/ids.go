// Package domain holds validated identifier primitives shared across packages.
//
// Identifiers are parsed once at trust boundaries (HTTP requests, roster seed
// files) and passed around as distinct types afterwards.
package domain

import (
	"strings"
	"unicode"

	dErrors "tally/pkg/domain-errors"
)

// MaxIDLength bounds every identifier accepted from callers.
const MaxIDLength = 128

// KeySeparator joins class and session identifiers in composite keys, so it may
// not appear inside either.
const KeySeparator = ":"

type (
	ClassID   string
	SessionID string
	StudentID string
	DeviceID  string
)

func (id ClassID) String() string   { return string(id) }
func (id SessionID) String() string { return string(id) }
func (id StudentID) String() string { return string(id) }
func (id DeviceID) String() string  { return string(id) }

// ParseClassID trims and validates a class identifier.
func ParseClassID(s string) (ClassID, error) {
	v, err := parseID("class_id", s)
	return ClassID(v), err
}

// ParseSessionID trims and validates a session identifier.
func ParseSessionID(s string) (SessionID, error) {
	v, err := parseID("session_id", s)
	return SessionID(v), err
}

// ParseStudentID trims and validates a student identifier.
func ParseStudentID(s string) (StudentID, error) {
	v, err := parseID("student_id", s)
	return StudentID(v), err
}

// ParseDeviceID trims and validates a device identifier.
func ParseDeviceID(s string) (DeviceID, error) {
	v, err := parseID("device_id", s)
	return DeviceID(v), err
}

func parseID(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > MaxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	if strings.Contains(s, KeySeparator) {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" must not contain '"+KeySeparator+"'")
	}
	for _, r := range s {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return "", dErrors.New(dErrors.CodeInvalidInput, field+" contains invalid characters")
		}
	}
	return s, nil
}

package gstpipe

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory represents the classification of GStreamer errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryDevice indicates the camera is missing, busy or disconnected
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryNegotiation indicates caps/format negotiation failures
	ErrCategoryNegotiation
	// ErrCategoryResource indicates memory, buffer pool or permission failures
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ClassifyGStreamerError categorizes a bus error for telemetry.
//
// go-gst's GError does not expose the error domain, so classification relies
// on message heuristics.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return Classify(gerr.Error(), gerr.DebugString())
}

// Classify categorizes an error from its message and debug string.
//
// Priority: negotiation (most specific), resource, device.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, negotiationKeywords):
		return ErrCategoryNegotiation
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

var (
	negotiationKeywords = []string{
		"not-negotiated",
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"no common",
	}

	resourceKeywords = []string{
		"out of memory",
		"allocate",
		"buffer pool",
		"permission denied",
		"no space",
	}

	deviceKeywords = []string{
		"camera",
		"libcamera",
		"device",
		"no such file",
		"busy",
		"could not open",
		"failed to acquire",
		"disconnected",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

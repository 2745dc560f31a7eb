package platform

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures.
type Kind int

const (
	KindInvalidSeriesID Kind = iota + 1
	KindSeriesNotFound
	// KindSourceFinished means the remote explicitly signals no future items.
	KindSourceFinished
	// KindEmptySeries means the series exists but has no items yet.
	KindEmptySeries
	KindMissingField
	KindInvalidTimestamp
	KindAPIError
	KindRequestFailed
	KindJSONParseFailed
)

var kindNames = map[Kind]string{
	KindInvalidSeriesID:  "invalid_series_id",
	KindSeriesNotFound:   "series_not_found",
	KindSourceFinished:   "source_finished",
	KindEmptySeries:      "empty_series",
	KindMissingField:     "missing_field",
	KindInvalidTimestamp: "invalid_timestamp",
	KindAPIError:         "api_error",
	KindRequestFailed:    "request_failed",
	KindJSONParseFailed:  "json_parse_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is returned by every adapter fetch.
type Error struct {
	Kind     Kind
	Platform string
	SourceID string
	// Field is set for KindMissingField and KindInvalidTimestamp.
	Field string
	// Message is set for KindAPIError.
	Message string
	Err     error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindInvalidSeriesID:
		msg = fmt.Sprintf("invalid series id %q", e.SourceID)
	case KindSeriesNotFound:
		msg = fmt.Sprintf("series %q not found", e.SourceID)
	case KindSourceFinished:
		msg = fmt.Sprintf("series %q is finished", e.SourceID)
	case KindEmptySeries:
		msg = fmt.Sprintf("series %q has no items", e.SourceID)
	case KindMissingField:
		msg = fmt.Sprintf("missing field %q", e.Field)
	case KindInvalidTimestamp:
		msg = fmt.Sprintf("invalid timestamp in %q: %s", e.Field, e.Message)
	case KindAPIError:
		msg = "api error: " + e.Message
	case KindRequestFailed:
		msg = "request failed"
	case KindJSONParseFailed:
		msg = "failed to parse response"
	default:
		msg = e.Kind.String()
	}
	if e.Platform != "" {
		msg = e.Platform + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == kind
}

// KindOf returns the kind of a wrapped *Error, or 0.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}

// URLParseError is returned when a URL does not have the shape an adapter expects.
type URLParseError struct {
	URL    string
	Reason string
}

func (e *URLParseError) Error() string {
	return fmt.Sprintf("cannot parse url %q: %s", e.URL, e.Reason)
}

// UnsupportedURLError is returned when no registered platform serves a URL.
type UnsupportedURLError struct {
	URL string
}

func (e *UnsupportedURLError) Error() string {
	return fmt.Sprintf("url %q is not supported", e.URL)
}

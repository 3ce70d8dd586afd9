package engine

import "errors"

// Status is the closed error taxonomy carried at the engine boundary.
// Every public operation returns either a value or one of these.
type Status int

const (
	Ok Status = iota
	InvalidParams
	InvalidSession
	FileNotFound
	FileWriteError
	BufferOverflow
	InsufficientData
	ProcessingError
	RecorderInitFailed
	PlayerNotInitialized
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case InvalidParams:
		return "invalid_params"
	case InvalidSession:
		return "invalid_session"
	case FileNotFound:
		return "file_not_found"
	case FileWriteError:
		return "file_write_error"
	case BufferOverflow:
		return "buffer_overflow"
	case InsufficientData:
		return "insufficient_data"
	case ProcessingError:
		return "processing_error"
	case RecorderInitFailed:
		return "recorder_init_failed"
	case PlayerNotInitialized:
		return "player_not_initialized"
	default:
		return "unknown_status"
	}
}

// Error wraps a Status with an optional detail string for diagnostic
// builds. No exceptions cross the engine boundary: every public operation
// that can fail returns an *Error rather than panicking.
type Error struct {
	Status Status
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Status.String()
	}
	return e.Status.String() + ": " + e.Detail
}

func newError(s Status, detail string) *Error { return &Error{Status: s, Detail: detail} }

// StatusOf extracts the Status from err, or Ok if err is nil. Errors that
// did not originate at the engine boundary are reported as ProcessingError.
func StatusOf(err error) Status {
	if err == nil {
		return Ok
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return ProcessingError
}

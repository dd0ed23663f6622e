package schemas

import "errors"

// ErrorCode classifies a collaborator failure so retry policy can be
// chosen without string matching. Using a custom type ensures only the
// predefined constants appear where an ErrorCode is expected.
type ErrorCode string

const (
	// ErrCodeRateLimited marks 429-class failures; callers back off
	// exponentially before retrying.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeUnavailable marks network failures and 5xx-class responses.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	// ErrCodeTimeout marks a per-attempt deadline expiry. Treated the same
	// as a generic transient failure.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeBadPayload marks an unparseable collaborator response.
	ErrCodeBadPayload ErrorCode = "BAD_PAYLOAD"
)

// CollabError wraps a collaborator failure with its classification.
type CollabError struct {
	Code ErrorCode
	Err  error
}

func (e *CollabError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *CollabError) Unwrap() error { return e.Err }

// NewCollabError wraps err with a classification code.
func NewCollabError(code ErrorCode, err error) *CollabError {
	return &CollabError{Code: code, Err: err}
}

// IsRateLimited reports whether err is classified as a rate-limit failure.
func IsRateLimited(err error) bool {
	var ce *CollabError
	return errors.As(err, &ce) && ce.Code == ErrCodeRateLimited
}

// ClassifyCode extracts the classification from err, defaulting to
// ErrCodeUnavailable for unclassified errors.
func ClassifyCode(err error) ErrorCode {
	var ce *CollabError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeUnavailable
}

package cdpcontrol

import (
	"errors"
	"fmt"
)

const (
	CodeValidation           = "VALIDATION"
	CodeTabNotFound          = "TAB_NOT_FOUND"
	CodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	CodeExecutionRefused     = "EXECUTION_REFUSED"
	CodeEvalFailure          = "EVAL_FAILURE"
	CodeEvalTimeout          = "EVAL_TIMEOUT"
	CodeCDPUnavailable       = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// NewError builds a CodedError for callers outside this package.
func NewError(code, msg string, cause error) error {
	return newError(code, msg, cause)
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// TabInfo describes a page target known to the client.
type TabInfo struct {
	Handle   int64  `json:"handle"`
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Favicon  string `json:"favicon,omitempty"`
}

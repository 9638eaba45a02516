package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error is a pipeline failure tagged with a registry code. URL is set when the
// object was already stored before the failure happened.
type Error struct {
	Code   Code
	Detail string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorKind returns the registry category of the code.
func (e *Error) ErrorKind() Category {
	if e == nil {
		return ""
	}
	if def, ok := registry[e.Code]; ok {
		return def.Category
	}
	return CategoryServer
}

// Is matches another *Error by code so errors.Is(err, &Error{Code: X}) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return other.Code == e.Code && other.Detail == "" && other.Err == nil
}

// New builds an Error for code.
func New(code Code, detail string, err error) *Error {
	return &Error{Code: code, Detail: strings.TrimSpace(detail), Err: err}
}

// Newf builds an Error with a formatted detail and no cause.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap joins stage and operation context into the detail so log lines show
// where in the pipeline the failure happened.
func Wrap(code Code, stage, operation, message string, err error) *Error {
	return New(code, buildDetail(stage, operation, message), err)
}

// WithURL returns a copy of err carrying the stored object URL.
func WithURL(err *Error, url string) *Error {
	if err == nil {
		return nil
	}
	cp := *err
	cp.URL = url
	return &cp
}

// From extracts the *Error in err's chain. Context cancellation becomes
// UPLOAD-REQUEST-002 and anything else UPLOAD-SERVER-001.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.Canceled) {
		return New(RequestCanceled, "", err)
	}
	return New(Unexpected, "", err)
}

// CodeOf returns the registry code for err, or "" for nil.
func CodeOf(err error) Code {
	if fe := From(err); fe != nil {
		return fe.Code
	}
	return ""
}

// IsRejection reports whether err is a policy rejection of the image itself
// rather than a failure of the pipeline.
func IsRejection(err error) bool {
	return CodeOf(err) == ResolutionTooLow
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	return strings.Join(parts, ": ")
}

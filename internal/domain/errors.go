package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure so callers can branch on the
// category without parsing messages.
type ErrorKind string

const (
	KindConfiguration   ErrorKind = "configuration"
	KindExternalService ErrorKind = "external_service"
	KindRender          ErrorKind = "render"
	KindInput           ErrorKind = "input"
)

// PipelineError tags an underlying error with the stage that produced it and
// its failure kind.
type PipelineError struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewPipelineError(kind ErrorKind, stage string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Err: err}
}

func Errorf(kind ErrorKind, stage, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// ErrKind reports the kind of err, or an empty kind when err carries none.
func ErrKind(err error) ErrorKind {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return ErrKind(err) == kind
}

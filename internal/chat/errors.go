package chat

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. Only KindValidation and KindDependencyFatal
// ever reach the caller; the other kinds label log lines and metrics.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindDependencyDegraded Kind = "dependency_degraded"
	KindDependencyFatal    Kind = "dependency_fatal"
	KindWriteBack          Kind = "write_back"
)

const (
	msgNoMessage       = "No message provided"
	msgCompletionFault = "Failed to get reply from model. Is Ollama running?"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

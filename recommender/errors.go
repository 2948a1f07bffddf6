package recommender

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrExtraction    = errors.New("attribute extraction failed")
	ErrComposition   = errors.New("query composition failed")
	ErrExecution     = errors.New("query execution failed")
	ErrSynthesis     = errors.New("result synthesis failed")
	ErrStageTimeout  = errors.New("stage deadline exceeded")
)

// StageError is the single failure an Answer call reports.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Cause is a short reason that is safe to show to a caller. It never carries
// generated query text or connection details.
func (e *StageError) Cause() string {
	for _, sentinel := range []error{ErrStageTimeout, ErrEmptyQuestion, ErrExtraction, ErrComposition, ErrExecution, ErrSynthesis} {
		if errors.Is(e.Err, sentinel) {
			return sentinel.Error()
		}
	}
	if errors.Is(e.Err, errCanceled) {
		return errCanceled.Error()
	}

	return "internal error"
}

func (e *StageError) Timeout() bool {
	return errors.Is(e.Err, ErrStageTimeout)
}

var errCanceled = errors.New("request canceled")

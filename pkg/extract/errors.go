package extract

import (
	"errors"
	"fmt"
)

// ParseError reports a completion that could not be turned into a record.
// Reply is the user-facing text; stored state is never changed when a
// ParseError is returned.
type ParseError struct {
	Stage  string
	Reason string
	Reply  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error: %s", e.Stage, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReplyFor returns the user-facing reply carried by err, if any.
func ReplyFor(err error) (string, bool) {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Reply != "" {
		return pe.Reply, true
	}
	return "", false
}

func newParseError(stage string, err error, reply string) *ParseError {
	return &ParseError{Stage: stage, Reason: err.Error(), Reply: reply, Err: err}
}

package model

import (
	"errors"
	"fmt"
)

// ErrEmptyGraph is returned when a graph has no edges to render.
var ErrEmptyGraph = errors.New("graph has no edges")

// QueryError reports a log query that ended in a non-successful state.
type QueryError struct {
	QueryID string
	Status  string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s ended with status %s", e.QueryID, e.Status)
}

// ParseError reports malformed upstream data: a JSON document, a table
// header or a field value that has the wrong shape.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

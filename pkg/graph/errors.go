package graph

import (
	"errors"
	"fmt"
)

var (
	// Lookup errors (404 Not Found).
	ErrNodeNotFound  = errors.New("node not found")
	ErrParamNotFound = errors.New("parameter not found")
	ErrEdgeNotFound  = errors.New("edge not found")

	// Validation errors (400 Bad Request).
	ErrInvalidConnection = errors.New("invalid connection")
	ErrInvalidGraph      = errors.New("invalid graph")

	// Conflicts (409 Conflict).
	ErrNodeExists = errors.New("node already exists")
)

// OpError wraps store errors with the operation and the addressed ids.
type OpError struct {
	Op     string
	NodeID string
	Ref    string // parameter, edge or file name, when relevant
	Err    error
}

func (e *OpError) Error() string {
	switch {
	case e.NodeID != "" && e.Ref != "":
		return fmt.Sprintf("%s %s.%s: %v", e.Op, e.NodeID, e.Ref, e.Err)
	case e.NodeID != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.NodeID, e.Err)
	case e.Ref != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func opError(op, nodeID, ref string, err error) *OpError {
	return &OpError{Op: op, NodeID: nodeID, Ref: ref, Err: err}
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrParamNotFound) ||
		errors.Is(err, ErrEdgeNotFound)
}

// IsValidationError reports whether err was caused by bad input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidConnection) || errors.Is(err, ErrInvalidGraph)
}

// IsConflict reports whether err is a conflict with the current graph.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNodeExists)
}

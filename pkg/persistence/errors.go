package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all gateways should use.
var (
	// ErrInvalidNodeID indicates a node id that cannot address a document.
	ErrInvalidNodeID = errors.New("invalid node id")

	// ErrInvalidFileName indicates a file name with no usable base name.
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrUnreachable indicates the backing store could not be contacted.
	ErrUnreachable = errors.New("persistence store unreachable")

	// ErrRejected indicates the backing store refused the request.
	ErrRejected = errors.New("persistence store rejected the request")
)

// NodeError wraps document errors with the operation and node id.
type NodeError struct {
	Op     string // Operation being performed
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s failed for node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewNodeError creates a new node error with context.
func NewNodeError(op, nodeID string, err error) *NodeError {
	return &NodeError{Op: op, NodeID: nodeID, Err: err}
}

// FileError wraps file blob errors with the operation, node and file.
type FileError struct {
	Op       string
	NodeID   string
	FileName string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s failed for file %s of node %s: %v", e.Op, e.FileName, e.NodeID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *FileError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFileError creates a new file error with context.
func NewFileError(op, nodeID, fileName string, err error) *FileError {
	return &FileError{Op: op, NodeID: nodeID, FileName: fileName, Err: err}
}

// IsUnreachable checks if an error indicates the store could not be contacted.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsInvalidInput checks if an error was caused by a bad node id or file name.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidNodeID) || errors.Is(err, ErrInvalidFileName)
}

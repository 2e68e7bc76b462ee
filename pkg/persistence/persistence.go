// Package persistence defines the gateway the graph store uses to load,
// save and delete node documents and their attached files.
package persistence

import (
	"context"
	"path"
	"strings"

	"github.com/dukex/nodegraph/pkg/models"
)

// Gateway is a remote or local store of node documents and file blobs.
//
// LoadNodeData and LoadNodeFile return (nil, nil) when nothing is stored,
// which is distinct from a failure.
type Gateway interface {
	SaveNodeData(ctx context.Context, nodeID string, doc *models.NodeDocument) error
	LoadNodeData(ctx context.Context, nodeID string) (*models.NodeDocument, error)
	DeleteNodeData(ctx context.Context, nodeID string) error

	SaveNodeFile(ctx context.Context, nodeID, fileName string, data []byte) (string, error)
	LoadNodeFile(ctx context.Context, nodeID, fileName string) ([]byte, error)
	DeleteNodeFile(ctx context.Context, nodeID, fileName string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// NormalizeFileName strips directory components from name. Both slash
// styles are treated as separators.
func NormalizeFileName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", ErrInvalidFileName
	}

	return base, nil
}

// ValidateNodeID rejects ids that cannot be used as a storage key.
func ValidateNodeID(nodeID string) error {
	if nodeID == "" || nodeID == "." || nodeID == ".." || strings.ContainsAny(nodeID, "/\\") {
		return ErrInvalidNodeID
	}

	return nil
}

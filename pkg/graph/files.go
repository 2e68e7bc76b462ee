package graph

import (
	"context"
	"slices"
	"strings"

	"github.com/dukex/nodegraph/pkg/persistence"
)

// SaveNodeFile stores a file for the node and records its name in the
// node's files. The node document is persisted afterwards.
func (s *Store) SaveNodeFile(ctx context.Context, nodeID, fileName string, data []byte) (string, error) {
	if _, ok := s.state.Load().node(nodeID); !ok {
		return "", opError("save_node_file", nodeID, fileName, ErrNodeNotFound)
	}

	var stored string

	err := s.withFileSpan(ctx, "save_file", nodeID, fileName, func(ctx context.Context) error {
		var err error
		stored, err = s.gateway.SaveNodeFile(ctx, nodeID, fileName, data)

		return err
	})
	if err != nil {
		s.logger.Warn("Failed to save node file", "node_id", nodeID, "file", fileName, "error", err)

		return "", opError("save_node_file", nodeID, fileName, err)
	}

	err = s.update(ctx, func(t *txn) error {
		n, ok := t.mutable(nodeID)
		if !ok {
			return nil
		}

		stored = strings.Clone(stored)

		if !slices.Contains(n.Data.Files, stored) {
			n.Data.Files = append(n.Data.Files, stored)
		}

		t.markPersist(nodeID)
		t.emit(Change{Kind: ChangeNodeUpdated, NodeID: nodeID})

		return nil
	})

	return stored, err
}

// LoadNodeFile returns the file contents, or nil when nothing is stored.
func (s *Store) LoadNodeFile(ctx context.Context, nodeID, fileName string) ([]byte, error) {
	var data []byte

	err := s.withFileSpan(ctx, "load_file", nodeID, fileName, func(ctx context.Context) error {
		var err error
		data, err = s.gateway.LoadNodeFile(ctx, nodeID, fileName)

		return err
	})
	if err != nil {
		return nil, opError("load_node_file", nodeID, fileName, err)
	}

	return data, nil
}

// DeleteNodeFile removes a stored file and drops it from the node's files.
func (s *Store) DeleteNodeFile(ctx context.Context, nodeID, fileName string) error {
	base, err := persistence.NormalizeFileName(fileName)
	if err != nil {
		return opError("delete_node_file", nodeID, fileName, err)
	}

	err = s.withFileSpan(ctx, "delete_file", nodeID, base, func(ctx context.Context) error {
		return s.gateway.DeleteNodeFile(ctx, nodeID, base)
	})
	if err != nil {
		s.logger.Warn("Failed to delete node file", "node_id", nodeID, "file", base, "error", err)

		return opError("delete_node_file", nodeID, base, err)
	}

	return s.update(ctx, func(t *txn) error {
		n, ok := t.mutable(nodeID)
		if !ok || !slices.Contains(n.Data.Files, base) {
			return nil
		}

		n.Data.Files = slices.DeleteFunc(n.Data.Files, func(f string) bool { return f == base })
		t.markPersist(nodeID)
		t.emit(Change{Kind: ChangeNodeUpdated, NodeID: nodeID})

		return nil
	})
}

// Package file provides a file-system persistence gateway for node documents.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/persistence"
)

const (
	dataFileName = "data.json"
	filesDir     = "files"
	dirPerm      = 0o755
	filePerm     = 0o644
)

// Persistence stores each node under {root}/nodes/{nodeID}/ with the
// document in data.json and blobs in files/.
type Persistence struct {
	root string
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrUnreachable, err)
	}

	return nil
}

func (fp *Persistence) nodeDir(nodeID string) string {
	return filepath.Join(fp.root, "nodes", nodeID)
}

func (fp *Persistence) SaveNodeData(_ context.Context, nodeID string, doc *models.NodeDocument) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return persistence.NewNodeError("save", nodeID, fmt.Errorf("failed to marshal document: %w", err))
	}

	if err := writeAtomic(filepath.Join(fp.nodeDir(nodeID), dataFileName), data); err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	return nil
}

func (fp *Persistence) LoadNodeData(_ context.Context, nodeID string) (*models.NodeDocument, error) {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	data, err := os.ReadFile(filepath.Join(fp.nodeDir(nodeID), dataFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	var doc models.NodeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, fmt.Errorf("failed to unmarshal document: %w", err))
	}

	return &doc, nil
}

// DeleteNodeData removes the document and every file of the node.
func (fp *Persistence) DeleteNodeData(_ context.Context, nodeID string) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("delete", nodeID, err)
	}

	if err := os.RemoveAll(fp.nodeDir(nodeID)); err != nil {
		return persistence.NewNodeError("delete", nodeID, err)
	}

	return nil
}

func (fp *Persistence) filePath(op, nodeID, fileName string) (string, string, error) {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return "", "", persistence.NewFileError(op, nodeID, fileName, err)
	}

	base, err := persistence.NormalizeFileName(fileName)
	if err != nil {
		return "", "", persistence.NewFileError(op, nodeID, fileName, err)
	}

	return filepath.Join(fp.nodeDir(nodeID), filesDir, base), base, nil
}

func (fp *Persistence) SaveNodeFile(_ context.Context, nodeID, fileName string, data []byte) (string, error) {
	target, base, err := fp.filePath("save", nodeID, fileName)
	if err != nil {
		return "", err
	}

	if err := writeAtomic(target, data); err != nil {
		return "", persistence.NewFileError("save", nodeID, base, err)
	}

	return base, nil
}

func (fp *Persistence) LoadNodeFile(_ context.Context, nodeID, fileName string) ([]byte, error) {
	target, base, err := fp.filePath("load", nodeID, fileName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, persistence.NewFileError("load", nodeID, base, err)
	}

	return data, nil
}

func (fp *Persistence) DeleteNodeFile(_ context.Context, nodeID, fileName string) error {
	target, base, err := fp.filePath("delete", nodeID, fileName)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewFileError("delete", nodeID, base, err)
	}

	return nil
}

// writeAtomic writes data to a sibling temp file and renames it over path,
// so readers never observe a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to chmod file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

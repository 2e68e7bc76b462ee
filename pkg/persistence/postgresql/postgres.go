// Package postgresql provides a PostgreSQL persistence gateway for node documents.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/dukex/nodegraph/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to ping database: %w", persistence.ErrUnreachable, err)
	}

	return nil
}

func (p *Persistence) SaveNodeData(ctx context.Context, nodeID string, doc *models.NodeDocument) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	paramsJSON, err := json.Marshal(doc.Params)
	if err != nil {
		return persistence.NewNodeError("save", nodeID, fmt.Errorf("failed to marshal params: %w", err))
	}

	files := doc.Files
	if files == nil {
		files = []string{}
	}

	filesJSON, err := json.Marshal(files)
	if err != nil {
		return persistence.NewNodeError("save", nodeID, fmt.Errorf("failed to marshal files: %w", err))
	}

	query := `
		INSERT INTO node_documents (node_id, params, files, cache, exec_time, memory, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (node_id) DO UPDATE SET
			params = EXCLUDED.params,
			files = EXCLUDED.files,
			cache = EXCLUDED.cache,
			exec_time = EXCLUDED.exec_time,
			memory = EXCLUDED.memory,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query, nodeID, paramsJSON, filesJSON, doc.Cache, doc.Time, doc.Memory)
	if err != nil {
		return persistence.NewNodeError("save", nodeID, fmt.Errorf("failed to save document: %w", err))
	}

	return nil
}

func (p *Persistence) LoadNodeData(ctx context.Context, nodeID string) (*models.NodeDocument, error) {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	query := `SELECT params, files, cache, exec_time, memory FROM node_documents WHERE node_id = $1`

	var (
		paramsJSON []byte
		filesJSON  []byte
		doc        models.NodeDocument
	)

	err := p.db.QueryRowContext(ctx, query, nodeID).Scan(&paramsJSON, &filesJSON, &doc.Cache, &doc.Time, &doc.Memory)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewNodeError("load", nodeID, fmt.Errorf("failed to query document: %w", err))
	}

	if err := json.Unmarshal(paramsJSON, &doc.Params); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, fmt.Errorf("failed to unmarshal params: %w", err))
	}

	if err := json.Unmarshal(filesJSON, &doc.Files); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, fmt.Errorf("failed to unmarshal files: %w", err))
	}

	return &doc, nil
}

// DeleteNodeData removes the document and every file of the node in one transaction.
func (p *Persistence) DeleteNodeData(ctx context.Context, nodeID string) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("delete", nodeID, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewNodeError("delete", nodeID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			p.logger.ErrorContext(ctx, "failed to rollback transaction", "node_id", nodeID, "error", rbErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_files WHERE node_id = $1`, nodeID); err != nil {
		return persistence.NewNodeError("delete", nodeID, fmt.Errorf("failed to delete files: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_documents WHERE node_id = $1`, nodeID); err != nil {
		return persistence.NewNodeError("delete", nodeID, fmt.Errorf("failed to delete document: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewNodeError("delete", nodeID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (p *Persistence) SaveNodeFile(ctx context.Context, nodeID, fileName string, data []byte) (string, error) {
	base, err := validateFile("save", nodeID, fileName)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO node_files (node_id, file_name, data, size, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (node_id, file_name) DO UPDATE SET
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			created_at = EXCLUDED.created_at
	`

	_, err = p.db.ExecContext(ctx, query, nodeID, base, data, len(data))
	if err != nil {
		return "", persistence.NewFileError("save", nodeID, base, fmt.Errorf("failed to save file: %w", err))
	}

	return base, nil
}

func (p *Persistence) LoadNodeFile(ctx context.Context, nodeID, fileName string) ([]byte, error) {
	base, err := validateFile("load", nodeID, fileName)
	if err != nil {
		return nil, err
	}

	var data []byte

	err = p.db.QueryRowContext(ctx, `SELECT data FROM node_files WHERE node_id = $1 AND file_name = $2`, nodeID, base).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewFileError("load", nodeID, base, fmt.Errorf("failed to query file: %w", err))
	}

	return data, nil
}

func (p *Persistence) DeleteNodeFile(ctx context.Context, nodeID, fileName string) error {
	base, err := validateFile("delete", nodeID, fileName)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `DELETE FROM node_files WHERE node_id = $1 AND file_name = $2`, nodeID, base)
	if err != nil {
		return persistence.NewFileError("delete", nodeID, base, fmt.Errorf("failed to delete file: %w", err))
	}

	return nil
}

func validateFile(op, nodeID, fileName string) (string, error) {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return "", persistence.NewFileError(op, nodeID, fileName, err)
	}

	base, err := persistence.NormalizeFileName(fileName)
	if err != nil {
		return "", persistence.NewFileError(op, nodeID, fileName, err)
	}

	return base, nil
}

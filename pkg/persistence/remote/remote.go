// Package remote provides a persistence gateway backed by the execution
// service's HTTP data store.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/gofiber/fiber/v3/client"
)

const defaultTimeout = 30 * time.Second

// Persistence talks to:
//
//	GET|POST|DELETE {base}/data/nodes/{nodeID}
//	GET|PUT|DELETE  {base}/data/files/{nodeID}/{fileName}
type Persistence struct {
	client  *client.Client
	baseURL string
}

// NewPersistence creates a gateway for the store at baseURL.
func NewPersistence(baseURL string) *Persistence {
	cc := client.New()
	cc.SetTimeout(defaultTimeout)

	return &Persistence{
		client:  cc,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	status, _, err := p.do(ctx, http.MethodGet, p.baseURL+"/health", nil, "")
	if err != nil {
		return err
	}

	if status >= http.StatusBadRequest {
		return fmt.Errorf("%w: health check returned %d", persistence.ErrUnreachable, status)
	}

	return nil
}

func (p *Persistence) nodeURL(nodeID string) string {
	return p.baseURL + "/data/nodes/" + url.PathEscape(nodeID)
}

func (p *Persistence) fileURL(nodeID, base string) string {
	return p.baseURL + "/data/files/" + url.PathEscape(nodeID) + "/" + url.PathEscape(base)
}

func (p *Persistence) SaveNodeData(ctx context.Context, nodeID string, doc *models.NodeDocument) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return persistence.NewNodeError("save", nodeID, fmt.Errorf("failed to marshal document: %w", err))
	}

	status, _, err := p.do(ctx, http.MethodPost, p.nodeURL(nodeID), body, "application/json")
	if err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	if status >= http.StatusBadRequest {
		return persistence.NewNodeError("save", nodeID, rejected(status))
	}

	return nil
}

func (p *Persistence) LoadNodeData(ctx context.Context, nodeID string) (*models.NodeDocument, error) {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	status, body, err := p.do(ctx, http.MethodGet, p.nodeURL(nodeID), nil, "")
	if err != nil {
		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	if status == http.StatusNotFound {
		return nil, nil
	}

	if status >= http.StatusBadRequest {
		return nil, persistence.NewNodeError("load", nodeID, rejected(status))
	}

	var doc models.NodeDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, persistence.NewNodeError("load", nodeID, fmt.Errorf("failed to unmarshal document: %w", err))
	}

	return &doc, nil
}

func (p *Persistence) DeleteNodeData(ctx context.Context, nodeID string) error {
	if err := persistence.ValidateNodeID(nodeID); err != nil {
		return persistence.NewNodeError("delete", nodeID, err)
	}

	status, _, err := p.do(ctx, http.MethodDelete, p.nodeURL(nodeID), nil, "")
	if err != nil {
		return persistence.NewNodeError("delete", nodeID, err)
	}

	if status >= http.StatusBadRequest && status != http.StatusNotFound {
		return persistence.NewNodeError("delete", nodeID, rejected(status))
	}

	return nil
}

type savedFile struct {
	FileName string `json:"fileName"`
}

func (p *Persistence) SaveNodeFile(ctx context.Context, nodeID, fileName string, data []byte) (string, error) {
	base, err := validateFile("save", nodeID, fileName)
	if err != nil {
		return "", err
	}

	status, body, err := p.do(ctx, http.MethodPut, p.fileURL(nodeID, base), data, "application/octet-stream")
	if err != nil {
		return "", persistence.NewFileError("save", nodeID, base, err)
	}

	if status >= http.StatusBadRequest {
		return "", persistence.NewFileError("save", nodeID, base, rejected(status))
	}

	var saved savedFile
	if len(body) > 0 && json.Unmarshal(body, &saved) == nil && saved.FileName != "" {
		return saved.FileName, nil
	}

	return base, nil
}

func (p *Persistence) LoadNodeFile(ctx context.Context, nodeID, fileName string) ([]byte, error) {
	base, err := validateFile("load", nodeID, fileName)
	if err != nil {
		return nil, err
	}

	status, body, err := p.do(ctx, http.MethodGet, p.fileURL(nodeID, base), nil, "")
	if err != nil {
		return nil, persistence.NewFileError("load", nodeID, base, err)
	}

	if status == http.StatusNotFound {
		return nil, nil
	}

	if status >= http.StatusBadRequest {
		return nil, persistence.NewFileError("load", nodeID, base, rejected(status))
	}

	return body, nil
}

func (p *Persistence) DeleteNodeFile(ctx context.Context, nodeID, fileName string) error {
	base, err := validateFile("delete", nodeID, fileName)
	if err != nil {
		return err
	}

	status, _, err := p.do(ctx, http.MethodDelete, p.fileURL(nodeID, base), nil, "")
	if err != nil {
		return persistence.NewFileError("delete", nodeID, base, err)
	}

	if status >= http.StatusBadRequest && status != http.StatusNotFound {
		return persistence.NewFileError("delete", nodeID, base, rejected(status))
	}

	return nil
}

// do sends a request and returns the status and a copy of the body.
// Transport failures are reported as ErrUnreachable.
func (p *Persistence) do(ctx context.Context, method, target string, body []byte, contentType string) (int, []byte, error) {
	req := p.client.R().SetContext(ctx)

	if body != nil {
		req.SetRawBody(body)
		req.SetHeader("Content-Type", contentType)
	}

	var (
		resp *client.Response
		err  error
	)

	switch method {
	case http.MethodGet:
		resp, err = req.Get(target)
	case http.MethodPost:
		resp, err = req.Post(target)
	case http.MethodPut:
		resp, err = req.Put(target)
	case http.MethodDelete:
		resp, err = req.Delete(target)
	default:
		return 0, nil, fmt.Errorf("unsupported method %s", method)
	}

	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", persistence.ErrUnreachable, err)
	}

	defer resp.Close()

	return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
}

func rejected(status int) error {
	return fmt.Errorf("%w: status %d", persistence.ErrRejected, status)
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

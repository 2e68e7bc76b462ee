package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/gofiber/fiber/v3/client"
)

var (
	ErrExecutorUnavailable = errors.New("execution service unavailable")
	ErrExecutionRejected   = errors.New("execution request rejected")
)

// RunResult is the execution service's acknowledgement.
type RunResult struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

// Executor submits export documents to the execution service.
type Executor struct {
	client  *client.Client
	baseURL string
}

func NewExecutor(baseURL string) *Executor {
	cc := client.New()
	cc.SetTimeout(30 * time.Second)

	return &Executor{client: cc, baseURL: strings.TrimRight(baseURL, "/")}
}

// Run posts export to {base}/graph.
func (e *Executor) Run(ctx context.Context, export models.ExportedGraph) (*RunResult, error) {
	resp, err := e.client.R().SetContext(ctx).SetJSON(export).Post(e.baseURL + "/graph")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutorUnavailable, err)
	}
	defer resp.Close()

	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrExecutionRejected, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}

	result := &RunResult{}
	if body := resp.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return nil, fmt.Errorf("%w: invalid acknowledgement: %w", ErrExecutionRejected, err)
		}
	}

	return result, nil
}

// StreamURL returns the push channel address for sid.
func (e *Executor) StreamURL(sid string) (string, error) {
	u, err := url.Parse(e.baseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported execution service scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"sid": {sid}}.Encode()

	return u.String(), nil
}

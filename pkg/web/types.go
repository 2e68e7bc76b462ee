package web

import "github.com/dukex/nodegraph/pkg/models"

// AddNodeRequest is the body of POST /sessions/:sid/nodes. When ID is set
// the node is inserted as a fixture with that id.
type AddNodeRequest struct {
	Type     string          `json:"type"     validate:"required"`
	ID       string          `json:"id,omitempty"`
	Position models.Position `json:"position"`
}

type MoveNodeRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

// SetParamRequest carries any JSON value, null included.
type SetParamRequest struct {
	Value any `json:"value"`
}

type ConnectRequest struct {
	Source       string `json:"source"       validate:"required"`
	SourceHandle string `json:"sourceHandle" validate:"required"`
	Target       string `json:"target"       validate:"required"`
	TargetHandle string `json:"targetHandle" validate:"required"`
}

// FileResponse reports the name a file was stored under.
type FileResponse struct {
	FileName string `json:"fileName"`
}

type SessionsResponse struct {
	Sessions []string `json:"sessions"`
}

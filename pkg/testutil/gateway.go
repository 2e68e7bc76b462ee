package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/persistence"
)

// MemoryGateway is an in-memory persistence.Gateway. Setting Err makes
// every call fail with it.
type MemoryGateway struct {
	mu    sync.Mutex
	docs  map[string]*models.NodeDocument
	files map[string][]byte
	calls map[string]int
	err   error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		docs:  map[string]*models.NodeDocument{},
		files: map[string][]byte{},
		calls: map[string]int{},
	}
}

// Fail makes subsequent calls return err. A nil err restores the gateway.
func (g *MemoryGateway) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.err = err
}

// Calls returns how many times op was invoked.
func (g *MemoryGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.calls[op]
}

// Document returns a copy of the stored document of nodeID.
func (g *MemoryGateway) Document(nodeID string) (*models.NodeDocument, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc, ok := g.docs[nodeID]
	if !ok {
		return nil, false
	}

	return copyDoc(doc), true
}

// Put stores a document directly.
func (g *MemoryGateway) Put(nodeID string, doc *models.NodeDocument) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.docs[nodeID] = copyDoc(doc)
}

func (g *MemoryGateway) begin(op string) error {
	g.mu.Lock()
	g.calls[op]++

	return g.err
}

func (g *MemoryGateway) SaveNodeData(_ context.Context, nodeID string, doc *models.NodeDocument) error {
	err := g.begin("SaveNodeData")
	defer g.mu.Unlock()

	if err != nil {
		return persistence.NewNodeError("save", nodeID, err)
	}

	g.docs[nodeID] = copyDoc(doc)

	return nil
}

func (g *MemoryGateway) LoadNodeData(_ context.Context, nodeID string) (*models.NodeDocument, error) {
	err := g.begin("LoadNodeData")
	defer g.mu.Unlock()

	if err != nil {
		return nil, persistence.NewNodeError("load", nodeID, err)
	}

	doc, ok := g.docs[nodeID]
	if !ok {
		return nil, nil
	}

	return copyDoc(doc), nil
}

func (g *MemoryGateway) DeleteNodeData(_ context.Context, nodeID string) error {
	err := g.begin("DeleteNodeData")
	defer g.mu.Unlock()

	if err != nil {
		return persistence.NewNodeError("delete", nodeID, err)
	}

	delete(g.docs, nodeID)

	for k := range g.files {
		if strings.HasPrefix(k, nodeID+"/") {
			delete(g.files, k)
		}
	}

	return nil
}

func (g *MemoryGateway) SaveNodeFile(_ context.Context, nodeID, fileName string, data []byte) (string, error) {
	err := g.begin("SaveNodeFile")
	defer g.mu.Unlock()

	if err != nil {
		return "", persistence.NewFileError("save", nodeID, fileName, err)
	}

	base, err := persistence.NormalizeFileName(fileName)
	if err != nil {
		return "", persistence.NewFileError("save", nodeID, fileName, err)
	}

	g.files[nodeID+"/"+base] = append([]byte(nil), data...)

	return base, nil
}

func (g *MemoryGateway) LoadNodeFile(_ context.Context, nodeID, fileName string) ([]byte, error) {
	err := g.begin("LoadNodeFile")
	defer g.mu.Unlock()

	if err != nil {
		return nil, persistence.NewFileError("load", nodeID, fileName, err)
	}

	base, err := persistence.NormalizeFileName(fileName)
	if err != nil {
		return nil, persistence.NewFileError("load", nodeID, fileName, err)
	}

	data, ok := g.files[nodeID+"/"+base]
	if !ok {
		return nil, nil
	}

	return append([]byte(nil), data...), nil
}

func (g *MemoryGateway) DeleteNodeFile(_ context.Context, nodeID, fileName string) error {
	err := g.begin("DeleteNodeFile")
	defer g.mu.Unlock()

	if err != nil {
		return persistence.NewFileError("delete", nodeID, fileName, err)
	}

	base, err := persistence.NormalizeFileName(fileName)
	if err != nil {
		return persistence.NewFileError("delete", nodeID, fileName, err)
	}

	delete(g.files, nodeID+"/"+base)

	return nil
}

func (g *MemoryGateway) HealthCheck(_ context.Context) error {
	err := g.begin("HealthCheck")
	defer g.mu.Unlock()

	return err
}

func (g *MemoryGateway) Close(_ context.Context) error {
	return nil
}

func copyDoc(doc *models.NodeDocument) *models.NodeDocument {
	if doc == nil {
		return nil
	}

	c := *doc
	c.Files = append([]string(nil), doc.Files...)

	if doc.Params == nil {
		return &c
	}

	c.Params = make(map[string]any, len(doc.Params))
	for k, v := range doc.Params {
		c.Params[k] = models.CloneValue(v)
	}

	return &c
}

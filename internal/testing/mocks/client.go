package mocks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/dl-alexandre/gdmirror/internal/api"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
)

// Call records one gateway invocation.
type Call struct {
	Op       string
	Title    string
	ParentID string
	MimeType string
	Path     string
	FileID   string
}

// MockGateway is an in-memory stand-in for the Drive gateway. Each method
// uses its Func field when set and the in-memory store otherwise.
type MockGateway struct {
	FindFolderFunc   func(ctx context.Context, title, parentID string) api.Result
	FindFileFunc     func(ctx context.Context, title, parentID string) api.Result
	CreateFolderFunc func(ctx context.Context, title, description, parentID string) api.Result
	CreateFileFunc   func(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result

	mu      sync.Mutex
	nodes   []*types.RemoteNode
	content map[string][]byte
	nextID  int
	calls   []Call
}

// NewMockGateway returns an empty gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{content: make(map[string][]byte)}
}

func (g *MockGateway) record(c Call) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
}

// Calls returns a copy of every recorded invocation.
func (g *MockGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// CallCount counts invocations of op.
func (g *MockGateway) CallCount(op string) int {
	n := 0
	for _, c := range g.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Nodes returns every stored node in creation order.
func (g *MockGateway) Nodes() []*types.RemoteNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*types.RemoteNode(nil), g.nodes...)
}

// Children returns stored nodes whose first parent is parentID.
func (g *MockGateway) Children(parentID string) []*types.RemoteNode {
	var out []*types.RemoteNode
	for _, n := range g.Nodes() {
		if n.ParentID() == parentID {
			out = append(out, n)
		}
	}
	return out
}

// Seed stores n as if it already existed remotely and returns it.
func (g *MockGateway) Seed(title, mimeType, parentID string) *types.RemoteNode {
	return g.add(title, "", mimeType, parentID, nil)
}

func (g *MockGateway) add(title, description, mimeType, parentID string, content []byte) *types.RemoteNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	n := &types.RemoteNode{
		ID:          fmt.Sprintf("id-%d", g.nextID),
		Title:       title,
		Description: description,
		MimeType:    mimeType,
		FileSize:    int64(len(content)),
		Kind:        "drive#file",
	}
	if parentID != "" {
		n.ParentIDs = []string{parentID}
	}
	g.nodes = append(g.nodes, n)
	if content != nil {
		g.content[n.ID] = content
	}
	return n
}

func (g *MockGateway) find(title, parentID string, folder bool) api.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		if n.Title != title || n.IsFolder() != folder {
			continue
		}
		if parentID != "" && n.ParentID() != parentID {
			continue
		}
		return api.Result{Node: n, Status: http.StatusOK}
	}
	return api.Result{Status: http.StatusNotFound, Reason: utils.ReasonNotFound}
}

func (g *MockGateway) FindFolder(ctx context.Context, title, parentID string) api.Result {
	g.record(Call{Op: "FindFolder", Title: title, ParentID: parentID})
	if g.FindFolderFunc != nil {
		return g.FindFolderFunc(ctx, title, parentID)
	}
	return g.find(title, parentID, true)
}

func (g *MockGateway) FindFile(ctx context.Context, title, parentID string) api.Result {
	g.record(Call{Op: "FindFile", Title: title, ParentID: parentID})
	if g.FindFileFunc != nil {
		return g.FindFileFunc(ctx, title, parentID)
	}
	return g.find(title, parentID, false)
}

func (g *MockGateway) CreateFolder(ctx context.Context, title, description, parentID string) api.Result {
	g.record(Call{Op: "CreateFolder", Title: title, ParentID: parentID, MimeType: utils.MimeTypeFolder})
	if g.CreateFolderFunc != nil {
		return g.CreateFolderFunc(ctx, title, description, parentID)
	}
	return g.StoreFolder(ctx, title, description, parentID)
}

// StoreFolder is the default CreateFolder behaviour, usable from Func overrides.
func (g *MockGateway) StoreFolder(ctx context.Context, title, description, parentID string) api.Result {
	return api.Result{Node: g.add(title, description, utils.MimeTypeFolder, parentID, nil), Status: http.StatusOK}
}

func (g *MockGateway) CreateFile(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result {
	g.record(Call{Op: "CreateFile", Title: title, ParentID: parentID, MimeType: mimeType, Path: localPath})
	if g.CreateFileFunc != nil {
		return g.CreateFileFunc(ctx, title, description, parentID, mimeType, localPath)
	}
	return g.StoreFile(ctx, title, description, parentID, mimeType, localPath)
}

// StoreFile is the default CreateFile behaviour, usable from Func overrides.
func (g *MockGateway) StoreFile(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return api.Result{Status: http.StatusInternalServerError, Reason: utils.ReasonParseError}
	}
	return api.Result{Node: g.add(title, description, mimeType, parentID, data), Status: http.StatusOK}
}

func (g *MockGateway) lookup(id string) *types.RemoteNode {
	for _, n := range g.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (g *MockGateway) GetFile(ctx context.Context, id string) api.Result {
	g.record(Call{Op: "GetFile", FileID: id})
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.lookup(id); n != nil {
		cp := *n
		return api.Result{Node: &cp, Status: http.StatusOK}
	}
	return api.Result{Status: http.StatusNotFound, Reason: utils.ReasonNotFound}
}

func (g *MockGateway) RenameFile(ctx context.Context, id, title string) api.Result {
	g.record(Call{Op: "RenameFile", FileID: id, Title: title})
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.lookup(id)
	if n == nil {
		return api.Result{Status: http.StatusNotFound, Reason: utils.ReasonNotFound}
	}
	n.Title = title
	cp := *n
	return api.Result{Node: &cp, Status: http.StatusOK}
}

func (g *MockGateway) UpdateFile(ctx context.Context, id, title, description, mimeType, localPath string, newRevision bool) api.Result {
	g.record(Call{Op: "UpdateFile", FileID: id, Title: title, MimeType: mimeType, Path: localPath})
	data, err := os.ReadFile(localPath)
	if err != nil {
		return api.Result{Status: http.StatusInternalServerError, Reason: utils.ReasonParseError}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.lookup(id)
	if n == nil {
		return api.Result{Status: http.StatusNotFound, Reason: utils.ReasonNotFound}
	}
	n.Title, n.Description, n.MimeType, n.FileSize = title, description, mimeType, int64(len(data))
	g.content[id] = data
	cp := *n
	return api.Result{Node: &cp, Status: http.StatusOK}
}

func (g *MockGateway) DeleteFile(ctx context.Context, id string) api.Result {
	g.record(Call{Op: "DeleteFile", FileID: id})
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, n := range g.nodes {
		if n.ID == id {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			delete(g.content, id)
			return api.Result{Status: http.StatusNoContent}
		}
	}
	return api.Result{Status: http.StatusNotFound, Reason: utils.ReasonNotFound}
}

func (g *MockGateway) Download(ctx context.Context, id string, w io.Writer) (int64, api.Result) {
	g.record(Call{Op: "Download", FileID: id})
	g.mu.Lock()
	data, ok := g.content[id]
	g.mu.Unlock()
	if !ok {
		return 0, api.Result{Status: http.StatusNotFound, Reason: utils.ReasonNotFound}
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), api.Result{Status: http.StatusInternalServerError, Reason: utils.ReasonParseError}
	}
	return int64(n), api.Result{Status: http.StatusOK}
}

// RateLimitedThen returns a create func that fails with a rate limit n times
// before delegating to next.
func RateLimitedThen(n int, next func(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result) func(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result {
	var mu sync.Mutex
	remaining := n
	return func(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result {
		mu.Lock()
		if remaining > 0 {
			remaining--
			mu.Unlock()
			return api.Result{Status: http.StatusForbidden, Reason: utils.ReasonUserRateLimitExceeded}
		}
		mu.Unlock()
		return next(ctx, title, description, parentID, mimeType, localPath)
	}
}

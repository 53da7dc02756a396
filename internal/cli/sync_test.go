package cli

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dl-alexandre/gdmirror/internal/api"
	"github.com/dl-alexandre/gdmirror/internal/logging"
	testhelpers "github.com/dl-alexandre/gdmirror/internal/testing"
	"github.com/dl-alexandre/gdmirror/internal/testing/mocks"
	"github.com/dl-alexandre/gdmirror/internal/utils"
)

func runTestUpload(t *testing.T, g *mocks.MockGateway, opts uploadTreeOptions) (uploadSummary, error) {
	t.Helper()
	return uploadTree(context.Background(), g, instantRetrier(), logging.NewNoOpLogger(), opts)
}

func TestUploadTreeCommand_Success(t *testing.T) {
	root := t.TempDir()
	testhelpers.WriteTree(t, root, map[string]string{
		"a.txt":           "alpha",
		"sub/b.qqzzy":     "beta",
		"skip/c.txt":      "gamma",
		".hidden/d.txt":   "delta",
		"sub/.e.txt":      "epsilon",
		"sub/deeper/f.md": "# f",
	})

	g := mocks.NewMockGateway()
	summary, err := runTestUpload(t, g, uploadTreeOptions{
		Root:        root,
		Title:       "Backup",
		Exclude:     []string{"skip/"},
		DumpMissing: true,
		Sniff:       false,
	})
	testhelpers.AssertNoError(t, err, "uploadTree")

	if !summary.OK() {
		t.Fatalf("failures = %+v, want none", summary.Failures)
	}
	testhelpers.AssertEqual(t, summary.FilesCreated, 3, "files created")
	testhelpers.AssertEqual(t, summary.FoldersCreated, 3, "folders created")
	if len(summary.MissingExtensions) != 1 || summary.MissingExtensions[0] != "qqzzy" {
		t.Errorf("MissingExtensions = %v, want [qqzzy]", summary.MissingExtensions)
	}

	rows := summary.Rows()
	var sawMissing bool
	for _, r := range rows {
		if r[0] == "No MIME type" && r[1] == ".qqzzy" {
			sawMissing = true
		}
	}
	if !sawMissing {
		t.Errorf("rows = %v, want a No MIME type row", rows)
	}
}

func TestUploadTreeCommand_MissingNotReportedByDefault(t *testing.T) {
	root := t.TempDir()
	testhelpers.WriteTree(t, root, map[string]string{"x.qqzzy": "x"})

	summary, err := runTestUpload(t, mocks.NewMockGateway(), uploadTreeOptions{Root: root, Title: "T"})
	testhelpers.AssertNoError(t, err, "uploadTree")
	if summary.MissingExtensions != nil {
		t.Errorf("MissingExtensions = %v, want nil", summary.MissingExtensions)
	}
}

func TestUploadTreeCommand_Errors(t *testing.T) {
	fileRoot := filepath.Join(t.TempDir(), "plain.txt")
	testhelpers.WriteTree(t, filepath.Dir(fileRoot), map[string]string{"plain.txt": "x"})

	tests := []struct {
		name     string
		root     string
		exclude  []string
		gateway  func() *mocks.MockGateway
		wantCode string
	}{
		{
			name:     "bad exclude pattern",
			root:     t.TempDir(),
			exclude:  []string{"[unclosed"},
			gateway:  mocks.NewMockGateway,
			wantCode: utils.ErrCodeInvalidArgument,
		},
		{
			name:     "root does not exist",
			root:     filepath.Join(t.TempDir(), "missing"),
			gateway:  mocks.NewMockGateway,
			wantCode: utils.ErrCodeInvalidPath,
		},
		{
			name:     "root is a file",
			root:     fileRoot,
			gateway:  mocks.NewMockGateway,
			wantCode: utils.ErrCodeInvalidPath,
		},
		{
			name: "root folder cannot be created",
			root: t.TempDir(),
			gateway: func() *mocks.MockGateway {
				g := mocks.NewMockGateway()
				g.CreateFolderFunc = func(ctx context.Context, title, description, parentID string) api.Result {
					return api.Result{Status: http.StatusInternalServerError, Reason: "backendError"}
				}
				return g
			},
			wantCode: utils.ErrCodeNetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runTestUpload(t, tt.gateway(), uploadTreeOptions{
				Root:    tt.root,
				Title:   "Dest",
				Exclude: tt.exclude,
			})
			testhelpers.AssertEqual(t, errorCode(t, err), tt.wantCode)
		})
	}
}

func TestUploadTreeCommand_RootFailureCarriesStatus(t *testing.T) {
	g := mocks.NewMockGateway()
	g.CreateFolderFunc = func(ctx context.Context, title, description, parentID string) api.Result {
		return api.Result{Status: http.StatusServiceUnavailable, Reason: "backendError"}
	}

	_, err := runTestUpload(t, g, uploadTreeOptions{Root: t.TempDir(), Title: "Dest"})
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want *utils.AppError", err)
	}
	testhelpers.AssertEqual(t, appErr.CLIError.HTTPStatus, http.StatusServiceUnavailable)
	testhelpers.AssertEqual(t, appErr.CLIError.DriveReason, "backendError")
}

func TestUploadTreeCommand_Canceled(t *testing.T) {
	root := t.TempDir()
	testhelpers.WriteTree(t, root, map[string]string{"a/b.txt": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	g := mocks.NewMockGateway()
	g.CreateFolderFunc = func(ctx context.Context, title, description, parentID string) api.Result {
		res := g.StoreFolder(ctx, title, description, parentID)
		cancel()
		return res
	}

	_, err := uploadTree(ctx, g, instantRetrier(), logging.NewNoOpLogger(), uploadTreeOptions{Root: root, Title: "Dest"})
	testhelpers.AssertEqual(t, errorCode(t, err), utils.ErrCodeCancelled)
}

func TestUploadSummary_PartialFailureRows(t *testing.T) {
	root := t.TempDir()
	testhelpers.WriteTree(t, root, map[string]string{"ok.txt": "ok", "bad.txt": "bad"})

	g := mocks.NewMockGateway()
	g.CreateFileFunc = func(ctx context.Context, title, description, parentID, mimeType, localPath string) api.Result {
		if title == "bad.txt" {
			return api.Result{Status: http.StatusForbidden, Reason: "insufficientPermissions"}
		}
		return g.StoreFile(ctx, title, description, parentID, mimeType, localPath)
	}

	summary, err := runTestUpload(t, g, uploadTreeOptions{Root: root, Title: "Dest"})
	testhelpers.AssertNoError(t, err, "uploadTree")
	if summary.OK() {
		t.Fatal("OK() = true, want false")
	}

	var found bool
	for _, r := range summary.Rows() {
		if strings.HasPrefix(r[0], "Failed ") && strings.Contains(r[1], "bad.txt") {
			found = true
		}
	}
	if !found {
		t.Errorf("rows = %v, want a failure row for bad.txt", summary.Rows())
	}
}

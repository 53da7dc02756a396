package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dl-alexandre/gdmirror/internal/utils"
	drive "google.golang.org/api/drive/v2"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("drive.NewService() error = %v", err)
	}
	return NewClient(svc, nil)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func driveError(status int, reason string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": reason,
			"errors":  []map[string]string{{"domain": "usageLimits", "reason": reason, "message": reason}},
		},
	}
}

func TestFindFolder(t *testing.T) {
	var gotQuery, gotMax string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotMax = r.URL.Query().Get("maxResults")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items": []map[string]interface{}{
				{"id": "folder-1", "title": "Bob's", "mimeType": "application/vnd.google-apps.folder", "parents": []map[string]string{{"id": "root-1"}}},
				{"id": "folder-2", "title": "Bob's"},
			},
		})
	})

	res := c.FindFolder(context.Background(), "Bob's", "root-1")
	if !res.OK() || res.Node == nil {
		t.Fatalf("FindFolder() = %v, want success", res)
	}
	if res.Node.ID != "folder-1" || res.Node.ParentID() != "root-1" || !res.Node.IsFolder() {
		t.Errorf("unexpected node %+v", res.Node)
	}
	if !strings.Contains(gotQuery, `title = 'Bob\'s'`) || !strings.Contains(gotQuery, `'root-1' in parents`) {
		t.Errorf("query = %q", gotQuery)
	}
	if gotMax != "1" {
		t.Errorf("maxResults = %q, want 1", gotMax)
	}
}

func TestFindFile_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": []interface{}{}})
	})

	res := c.FindFile(context.Background(), "missing.txt", "")
	if res.Node != nil || res.Status != 404 || res.Reason != "notFound" {
		t.Errorf("FindFile() = %v, want (nil, 404, notFound)", res)
	}
}

func TestCreateFolder(t *testing.T) {
	var body drive.File
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/files") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "new-folder", "title": body.Title, "mimeType": body.MimeType})
	})

	res := c.CreateFolder(context.Background(), "Backup", "", "")
	if !res.OK() || res.Node.ID != "new-folder" {
		t.Fatalf("CreateFolder() = %v", res)
	}
	if body.MimeType != "application/vnd.google-apps.folder" {
		t.Errorf("mimeType = %q", body.MimeType)
	}
	if len(body.Parents) != 0 {
		t.Errorf("root folder should have no parents, got %v", body.Parents)
	}

	c.CreateFolder(context.Background(), "sub", "", "parent-9")
	if len(body.Parents) != 1 || body.Parents[0].Id != "parent-9" {
		t.Errorf("parents = %v, want [parent-9]", body.Parents)
	}
}

func TestCreateFile_SingleRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var meta drive.File
	var content []byte
	var uploadType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		uploadType = r.URL.Query().Get("uploadType")
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("content type: %v", err)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err == nil {
			_ = json.NewDecoder(part).Decode(&meta)
		}
		if part, err = mr.NextPart(); err == nil {
			content, _ = io.ReadAll(part)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "file-1", "title": meta.Title, "mimeType": meta.MimeType})
	})

	res := c.CreateFile(context.Background(), "a.txt", "", "folder-1", "text/plain", path)
	if !res.OK() || res.Node.ID != "file-1" {
		t.Fatalf("CreateFile() = %v", res)
	}
	if uploadType != "multipart" {
		t.Errorf("uploadType = %q, want multipart", uploadType)
	}
	if meta.Title != "a.txt" || len(meta.Parents) != 1 || meta.Parents[0].Id != "folder-1" {
		t.Errorf("metadata = %+v", meta)
	}
	if !bytes.Equal(content, []byte("hello")) {
		t.Errorf("content = %q", content)
	}
}

func TestCreateFile_MissingLocalFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	res := c.CreateFile(context.Background(), "x", "", "", "text/plain", filepath.Join(t.TempDir(), "gone"))
	if res.OK() || res.Status != 500 || res.Reason != "parseError" {
		t.Errorf("CreateFile() = %v", res)
	}
}

func TestCreateFolder_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, driveError(http.StatusForbidden, "userRateLimitExceeded"))
	})

	res := c.CreateFolder(context.Background(), "x", "", "")
	if res.Node != nil || res.Status != 403 || res.Reason != "userRateLimitExceeded" || !res.RateLimited() {
		t.Errorf("CreateFolder() = %v", res)
	}
}

func TestGetFile_UnparseableError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>oops</html>"))
	})

	res := c.GetFile(context.Background(), "id")
	if res.Status != 500 || res.Reason != "parseError" {
		t.Errorf("GetFile() = %v, want (500, parseError)", res)
	}
}

func TestRenameFile(t *testing.T) {
	var method string
	var body drive.File
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "f", "title": body.Title, "fileExtension": "pdf"})
	})

	res := c.RenameFile(context.Background(), "f", "report.pdf")
	if !res.OK() || res.Node.Title != "report.pdf" {
		t.Fatalf("RenameFile() = %v", res)
	}
	if method != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", method)
	}
}

func TestDeleteFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if res := c.DeleteFile(context.Background(), "f"); !res.OK() {
		t.Errorf("DeleteFile() = %v", res)
	}
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("alt = %q, want media", r.URL.Query().Get("alt"))
		}
		_, _ = w.Write([]byte("file body"))
	})

	var buf bytes.Buffer
	n, res := c.Download(context.Background(), "f", &buf)
	if !res.OK() || n != 9 || buf.String() != "file body" {
		t.Errorf("Download() = %d, %v, %q", n, res, buf.String())
	}
}

func TestResumableChunk(t *testing.T) {
	const kib, mib = 1024, 1024 * 1024

	tests := []struct {
		name      string
		chunk     int
		threshold int64
		want      int
	}{
		{"defaults", 0, -1, utils.UploadChunkSize},
		{"chunk above threshold", 8 * mib, 5 * mib, 5 * mib},
		{"unaligned threshold rounds down", 8 * mib, 3*mib + 100, 3 * mib},
		{"tiny threshold keeps minimum chunk", mib, 100 * kib, 256 * kib},
		{"threshold disabled", 8 * mib, 0, 8 * mib},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(nil, nil, WithChunkSize(tt.chunk), WithResumableThreshold(tt.threshold))
			if got := c.resumableChunk(); got != tt.want {
				t.Errorf("resumableChunk() = %d, want %d", got, tt.want)
			}
		})
	}
}

// uploadServer accepts Drive v2 inserts and records the uploadType of each
// upload that starts. Resumable sessions answer 308 until the last chunk.
type uploadServer struct {
	*httptest.Server

	mu          sync.Mutex
	uploadTypes []string
	chunks      int
}

func newUploadServer(t *testing.T) *uploadServer {
	t.Helper()
	us := &uploadServer{}
	us.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		us.mu.Lock()
		defer us.mu.Unlock()

		switch ut := r.URL.Query().Get("uploadType"); ut {
		case "multipart":
			us.uploadTypes = append(us.uploadTypes, ut)
			writeJSON(w, http.StatusOK, map[string]string{"id": "file-1", "title": "blob.bin"})
		case "resumable":
			us.uploadTypes = append(us.uploadTypes, ut)
			w.Header().Set("Location", us.URL+"/upload-session")
			w.WriteHeader(http.StatusOK)
		default:
			us.chunks++
			// The final chunk is the first to carry the total size.
			cr := r.Header.Get("Content-Range")
			if strings.HasSuffix(cr, "/*") {
				w.WriteHeader(308)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"id": "file-1", "title": "blob.bin"})
		}
	}))
	t.Cleanup(us.Close)
	return us
}

func TestCreateFile_UploadProtocolBySize(t *testing.T) {
	const threshold = utils.UploadSimpleMaxBytes

	tests := []struct {
		name          string
		size          int64
		opts          []ClientOption
		wantType      string
		wantMinChunks int
	}{
		{"at threshold", threshold, nil, "multipart", 0},
		{"one byte over threshold", threshold + 1, nil, "resumable", 2},
		{"chunk setting above threshold", 6 * 1024 * 1024, []ClientOption{WithChunkSize(8 * 1024 * 1024)}, "resumable", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			us := newUploadServer(t)
			svc, err := drive.NewService(context.Background(),
				option.WithEndpoint(us.URL+"/"),
				option.WithHTTPClient(us.Client()),
			)
			if err != nil {
				t.Fatalf("drive.NewService() error = %v", err)
			}
			c := NewClient(svc, nil, tt.opts...)

			path := filepath.Join(t.TempDir(), "blob.bin")
			if err := os.WriteFile(path, make([]byte, tt.size), 0644); err != nil {
				t.Fatal(err)
			}

			res := c.CreateFile(context.Background(), "blob.bin", "", "parent-1", "application/octet-stream", path)
			if !res.OK() || res.Node.ID != "file-1" {
				t.Fatalf("CreateFile() = %v, want success", res)
			}

			us.mu.Lock()
			defer us.mu.Unlock()
			if len(us.uploadTypes) != 1 || us.uploadTypes[0] != tt.wantType {
				t.Errorf("uploadTypes = %v, want [%s]", us.uploadTypes, tt.wantType)
			}
			if us.chunks < tt.wantMinChunks {
				t.Errorf("chunks = %d, want at least %d", us.chunks, tt.wantMinChunks)
			}
		})
	}
}

package cache

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dl-alexandre/gdmirror/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleNode() *types.RemoteNode {
	return &types.RemoteNode{
		ID:            "file-1",
		Title:         "report.pdf",
		MimeType:      "application/pdf",
		Description:   "quarterly",
		FileExtension: "pdf",
		FileSize:      2048,
		MD5Checksum:   "abc123",
		CreatedDate:   "2024-01-02T03:04:05.000Z",
		ModifiedDate:  "2024-01-03T03:04:05.000Z",
		DownloadURL:   "https://example.invalid/dl",
		Etag:          `"etag-1"`,
		Kind:          "drive#file",
		ParentIDs:     []string{"parent-a", "parent-b"},
		Labels:        &types.NodeLabels{Starred: true},
		UserPermission: &types.UserPermission{
			Etag: `"perm"`, Kind: "drive#permission", Role: "owner", Type: "user",
		},
	}
}

func TestOpenMigrates(t *testing.T) {
	db := openTestDB(t)
	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}

	// Re-running is a no-op.
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFile(context.Background(), sampleNode()); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()
	if _, err := db.GetFile(context.Background(), "file-1"); err != nil {
		t.Errorf("GetFile() after reopen error = %v", err)
	}
}

func TestUpsertAndGetFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	want := sampleNode()

	if err := db.UpsertFile(ctx, want); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	got, err := db.GetFile(ctx, want.ID)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetFile() = %+v, want %+v", got, want)
	}
}

func TestUpsertReplacesRelatedRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n := sampleNode()
	if err := db.UpsertFile(ctx, n); err != nil {
		t.Fatal(err)
	}

	n.Title = "report-v2.pdf"
	n.ParentIDs = []string{"parent-c"}
	n.Labels = nil
	n.UserPermission = nil
	if err := db.UpsertFile(ctx, n); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetFile(ctx, n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "report-v2.pdf" {
		t.Errorf("Title = %q", got.Title)
	}
	if !reflect.DeepEqual(got.ParentIDs, []string{"parent-c"}) {
		t.Errorf("ParentIDs = %v", got.ParentIDs)
	}
	if got.Labels != nil || got.UserPermission != nil {
		t.Errorf("stale labels/permission kept: %+v %+v", got.Labels, got.UserPermission)
	}

	entries, err := db.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("ListFiles() = %v, want one entry", entries)
	}
}

func TestUpsertRejectsMissingID(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertFile(context.Background(), &types.RemoteNode{Title: "x"}); err == nil {
		t.Error("expected error for node without id")
	}
	if err := db.UpsertFile(context.Background(), nil); err == nil {
		t.Error("expected error for nil node")
	}
}

func TestRenameFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.UpsertFile(ctx, sampleNode()); err != nil {
		t.Fatal(err)
	}

	if err := db.RenameFile(ctx, "file-1", "slides.final.key"); err != nil {
		t.Fatalf("RenameFile() error = %v", err)
	}
	got, err := db.GetFile(ctx, "file-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "slides.final.key" || got.FileExtension != "key" {
		t.Errorf("after rename: title=%q ext=%q", got.Title, got.FileExtension)
	}

	err = db.RenameFile(ctx, "missing", "x.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RenameFile(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListFilesOrdered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, n := range []*types.RemoteNode{
		{ID: "3", Title: "zeta"},
		{ID: "1", Title: "alpha"},
		{ID: "2", Title: "mid"},
	} {
		if err := db.UpsertFile(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{{"alpha", "1"}, {"mid", "2"}, {"zeta", "3"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListFiles() = %v, want %v", got, want)
	}
}

func TestListFilesEmpty(t *testing.T) {
	db := openTestDB(t)
	got, err := db.ListFiles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("ListFiles() = %v, want empty", got)
	}
}

func TestFindIDByTitle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for _, n := range []*types.RemoteNode{
		{ID: "a", Title: "unique.txt"},
		{ID: "b", Title: "dup.txt"},
		{ID: "c", Title: "dup.txt"},
	} {
		if err := db.UpsertFile(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		title   string
		wantID  string
		wantErr error
	}{
		{"unique.txt", "a", nil},
		{"dup.txt", "", ErrAmbiguousTitle},
		{"nope.txt", "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			id, err := db.FindIDByTitle(ctx, tt.title)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestDeleteFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.UpsertFile(ctx, sampleNode()); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteFile(ctx, "file-1"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := db.GetFile(ctx, "file-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFile() after delete error = %v, want ErrNotFound", err)
	}
	parents, err := db.parentIDs(ctx, "file-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(parents) != 0 {
		t.Errorf("parents left behind: %v", parents)
	}

	if err := db.DeleteFile(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteFile(unknown) error = %v", err)
	}
}

func TestInferExtension(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"a.txt", "txt"},
		{"archive.tar.gz", "gz"},
		{"README", ""},
		{"trailing.", ""},
		{".bashrc", "bashrc"},
	}
	for _, tt := range tests {
		if got := InferExtension(tt.title); got != tt.want {
			t.Errorf("InferExtension(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

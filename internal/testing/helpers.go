// Package testing holds helpers shared by the package tests.
package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dl-alexandre/gdmirror/internal/types"
)

// TestRequestContext returns a mutation request context for profile
// "test-profile" with a fixed trace ID.
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Profile:           "test-profile",
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       types.RequestTypeMutation,
		TraceID:           "test-trace-id",
	}
}

// WriteTree creates files under root. Keys are slash-separated relative
// paths; a key ending in "/" creates an empty directory.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		dir := p
		if !strings.HasSuffix(rel, "/") {
			dir = filepath.Dir(p)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		if dir == p {
			continue
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

// label turns optional msgAndArgs into a "msg: " prefix.
func label(msgAndArgs []interface{}) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	return fmt.Sprint(msgAndArgs[0]) + ": "
}

// AssertNoError stops the test when err is not nil.
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatalf("%sunexpected error: %v", label(msgAndArgs), err)
	}
}

// AssertError stops the test when err is nil.
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		t.Fatalf("%sexpected error but got nil", label(msgAndArgs))
	}
}

// AssertEqual stops the test when got != want.
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		t.Fatalf("%sgot %v, want %v", label(msgAndArgs), got, want)
	}
}

package sync

import (
	"time"

	"github.com/dl-alexandre/gdmirror/internal/api"
)

// Failure is one item the upload could not create.
type Failure struct {
	Path   string `json:"path"`
	Op     string `json:"op"`
	Status int    `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Report summarises one UploadTree call. Each path appears in Failures at
// most once; a folder whose create fails during its parent's listing is
// counted only if the retry on its own visit also fails.
type Report struct {
	Root           string            `json:"root"`
	RootID         string            `json:"rootId"`
	TraceID        string            `json:"traceId"`
	FoldersFound   int               `json:"foldersFound"`
	FoldersCreated int               `json:"foldersCreated"`
	FoldersFailed  int               `json:"foldersFailed"`
	FilesCreated   int               `json:"filesCreated"`
	FilesFailed    int               `json:"filesFailed"`
	Skipped        int               `json:"skipped"`
	DirsSkipped    int               `json:"dirsSkipped"`
	Failures       []Failure         `json:"failures,omitempty"`
	Mapping        map[string]string `json:"mapping"`
	Duration       time.Duration     `json:"durationNs"`
}

func (r *Report) addFailure(path string, res api.Result, op string) {
	r.Failures = append(r.Failures, Failure{
		Path:   path,
		Op:     op,
		Status: res.Status,
		Reason: res.Reason,
	})
}

// OK reports whether every item was created or found.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

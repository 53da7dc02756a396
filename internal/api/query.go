package api

import (
	"fmt"
	"strings"

	"github.com/dl-alexandre/gdmirror/internal/utils"
)

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// EscapeQuery quotes s for use inside a single-quoted Drive query literal.
func EscapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// childQuery matches non-trashed items titled exactly title. Folders or
// non-folders are selected by folder; parentID restricts to direct children.
func childQuery(title, parentID string, folder bool) string {
	op := "="
	if !folder {
		op = "!="
	}
	q := fmt.Sprintf("title = '%s' and mimeType %s '%s' and trashed = false",
		EscapeQuery(title), op, utils.MimeTypeFolder)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", EscapeQuery(parentID))
	}
	return q
}

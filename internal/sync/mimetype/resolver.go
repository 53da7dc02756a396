// Package mimetype picks the MIME type sent to Drive for an uploaded file.
package mimetype

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"

	sniff "github.com/gabriel-vasile/mimetype"
)

// overrides take precedence over the platform registry. Several of these
// (Apple iWork, the OOXML templates, .md, .txt) are missing or wrong on
// common systems.
var overrides = map[string]string{
	"gz":         "application/gzip",
	"pages":      "application/vnd.apple.pages",
	"key":        "application/vnd.apple.keynote",
	"numbers":    "application/vnd.apple.numbers",
	"cwk":        "application/clarisworks",
	"xlsx":       "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xltx":       "application/vnd.openxmlformats-officedocument.spreadsheetml.template",
	"potx":       "application/vnd.openxmlformats-officedocument.presentationml.template",
	"ppsx":       "application/vnd.openxmlformats-officedocument.presentationml.slideshow",
	"pptx":       "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"sldx":       "application/vnd.openxmlformats-officedocument.presentationml.slide",
	"docx":       "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"dotx":       "application/vnd.openxmlformats-officedocument.wordprocessingml.template",
	"xlam":       "application/vnd.ms-excel.addin.macroEnabled.12",
	"xlsb":       "application/vnd.ms-excel.sheet.binary.macroEnabled.12",
	"md":         "text/x-markdown",
	"cs":         "text/plain",
	"m":          "text/plain",
	"php":        "text/plain",
	"properties": "text/plain",
	"rb":         "text/plain",
	"txt":        "text/plain",
	"yaml":       "text/plain",
	"yml":        "text/plain",
}

// Resolver maps file paths to MIME types and remembers which extensions
// had no known type. It is not safe for concurrent use.
type Resolver struct {
	missing map[string]string
	sniff   bool
}

// NewResolver returns a Resolver. When sniff is true, files whose extension
// is unknown are inspected for magic numbers.
func NewResolver(sniff bool) *Resolver {
	return &Resolver{missing: make(map[string]string), sniff: sniff}
}

// Extension returns the lower-cased text after the final '.' of the base
// name, or "" when there is none.
func Extension(path string) string {
	base := filepath.Base(path)
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// Resolve returns the MIME type for path, or "" when nothing fits.
func (r *Resolver) Resolve(path string) string {
	ext := Extension(path)
	if ext != "" {
		if mt, ok := overrides[ext]; ok {
			return mt
		}
		if mt := stripParams(mime.TypeByExtension("." + ext)); mt != "" {
			return mt
		}
	}

	r.missing[ext] = path

	if !r.sniff {
		return ""
	}
	return guess(path)
}

// Missing returns extension -> last path seen, for extensions that were not
// in the override table or the platform registry. The unknown-extension
// case is keyed by "".
func (r *Resolver) Missing() map[string]string {
	out := make(map[string]string, len(r.missing))
	for k, v := range r.missing {
		out[k] = v
	}
	return out
}

// MissingExtensions returns the keys of Missing in sorted order.
func (r *Resolver) MissingExtensions() []string {
	exts := make([]string, 0, len(r.missing))
	for k := range r.missing {
		exts = append(exts, k)
	}
	sort.Strings(exts)
	return exts
}

func guess(path string) string {
	m, err := sniff.DetectFile(path)
	if err != nil || m == nil {
		return ""
	}
	if m.Is("application/octet-stream") {
		return ""
	}
	return stripParams(m.String())
}

func stripParams(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

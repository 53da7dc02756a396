// Package naming converts local file names into Drive titles.
package naming

import "strings"

// Normalize maps a local name to the title used on Drive. Classic Mac OS
// stored '/' in names as ':', so every ':' becomes '/'. Nothing is dropped
// and applying Normalize twice changes nothing further.
func Normalize(name string) string {
	return strings.ReplaceAll(name, ":", "/")
}

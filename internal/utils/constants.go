package utils

// Upload thresholds (binary units)
const (
	UploadSimpleMaxBytes = 5 * 1024 * 1024 // 5 MiB
	UploadChunkSize      = 1024 * 1024     // 1 MiB
	// Drive requires resumable chunks to be a multiple of this
	UploadChunkAlignment = 256 * 1024
)

// OAuth scopes
const (
	ScopeFull     = "https://www.googleapis.com/auth/drive"
	ScopeFile     = "https://www.googleapis.com/auth/drive.file"
	ScopeReadonly = "https://www.googleapis.com/auth/drive.readonly"
)

// ScopesTreeUpload is requested by default: folder lookups by title need
// visibility of items this client did not create.
var ScopesTreeUpload = []string{ScopeFull}

// Retry configuration for rate-limited creates
const (
	DefaultMaxAttempts = 5
	MaxAttemptsLimit   = 10
)

// Drive error reasons that signal a rate limit
const (
	ReasonRateLimitExceeded     = "rateLimitExceeded"
	ReasonUserRateLimitExceeded = "userRateLimitExceeded"
	ReasonNotFound              = "notFound"
	ReasonParseError            = "parseError"
)

// Schema version of the JSON output envelope
const SchemaVersion = "1.0"

// MIME types
const (
	MimeTypeFolder      = "application/vnd.google-apps.folder"
	MimeTypeOctetStream = "application/octet-stream"
)

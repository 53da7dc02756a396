package types

// RequestType classifies an API call for logging
type RequestType string

const (
	RequestTypeGetByID       RequestType = "get_by_id"
	RequestTypeMutation      RequestType = "mutation"
	RequestTypeDownloadOrExp RequestType = "download"
)

// RequestContext carries per-request metadata for logging and errors
type RequestContext struct {
	Profile           string
	InvolvedFileIDs   []string
	InvolvedParentIDs []string
	RequestType       RequestType
	TraceID           string
}

package types

// RemoteNode represents a Drive file or folder as returned by the v2 API
type RemoteNode struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	MimeType       string          `json:"mimeType"`
	Description    string          `json:"description,omitempty"`
	ParentIDs      []string        `json:"parents,omitempty"`
	FileExtension  string          `json:"fileExtension,omitempty"`
	FileSize       int64           `json:"fileSize,omitempty"`
	MD5Checksum    string          `json:"md5Checksum,omitempty"`
	CreatedDate    string          `json:"createdDate,omitempty"`
	ModifiedDate   string          `json:"modifiedDate,omitempty"`
	DownloadURL    string          `json:"downloadUrl,omitempty"`
	Etag           string          `json:"etag,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	Labels         *NodeLabels     `json:"labels,omitempty"`
	UserPermission *UserPermission `json:"userPermission,omitempty"`
}

// NodeLabels mirrors the label flags Drive keeps on every item
type NodeLabels struct {
	Hidden  bool `json:"hidden"`
	Starred bool `json:"starred"`
	Trashed bool `json:"trashed"`
}

// UserPermission is the caller's own permission on an item
type UserPermission struct {
	Etag string `json:"etag,omitempty"`
	Kind string `json:"kind,omitempty"`
	Role string `json:"role"`
	Type string `json:"type"`
}

// IsFolder reports whether the node is a Drive folder
func (n *RemoteNode) IsFolder() bool {
	return n != nil && n.MimeType == "application/vnd.google-apps.folder"
}

// ParentID returns the first parent, which is the only one this tool ever sets
func (n *RemoteNode) ParentID() string {
	if n == nil || len(n.ParentIDs) == 0 {
		return ""
	}
	return n.ParentIDs[0]
}

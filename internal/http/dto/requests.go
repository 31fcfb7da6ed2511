package dto

type CreateIncidentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Severity    string `json:"severity,omitempty"` // defaults to medium
}

type AddCommentRequest struct {
	Message string `json:"message"`
}

// AddAttachmentRequest registers a blob that the client already uploaded to the blob store.
type AddAttachmentRequest struct {
	StoragePath string `json:"storage_path"`
	Filename    string `json:"filename"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type,omitempty"`
}

type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Role     *string `json:"role,omitempty"`
	Team     *string `json:"team,omitempty"` // empty string clears the team
}

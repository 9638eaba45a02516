package api

import "photoline/internal/faults"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ImageItem describes an image row in a transport-friendly format.
type ImageItem struct {
	ID         int64  `json:"id"`
	UserID     string `json:"userId"`
	StorageKey string `json:"storageKey"`
	URL        string `json:"url,omitempty"`
	Status     string `json:"status"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int64  `json:"bytes"`
	ErrorCode  string `json:"errorCode,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// ImageListResponse wraps a collection of images.
type ImageListResponse struct {
	Images []ImageItem `json:"images"`
}

// UserItem describes a member record.
type UserItem struct {
	ID         string `json:"id"`
	AuthUserID string `json:"authUserId"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Approved   bool   `json:"approved"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// UploadResponse is the success shape of an image submission. Filename is
// the full storage key.
type UploadResponse struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	ImageID   int64  `json:"imageId,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	DatabasePath   string         `json:"databasePath"`
	LockFilePath   string         `json:"lockFilePath"`
	SchemaVersion  string         `json:"schemaVersion,omitempty"`
	StorageBackend string         `json:"storageBackend"`
	DatabaseOK     bool           `json:"databaseOk"`
	DatabaseError  string         `json:"databaseError,omitempty"`
	Users          int            `json:"users"`
	ApprovedUsers  int            `json:"approvedUsers"`
	Images         map[string]int `json:"images"`
	StoredBytes    int64          `json:"storedBytes"`
	Reconcile      bool           `json:"reconcile"`
}

// ErrorListResponse wraps the fault registry.
type ErrorListResponse struct {
	Errors []faults.Definition `json:"errors"`
}

package api

import (
	"time"

	"photoline/internal/ingest"
	"photoline/internal/store"
)

// FromImage converts an image row to its API representation.
func FromImage(img *store.Image) ImageItem {
	if img == nil {
		return ImageItem{}
	}
	return ImageItem{
		ID:         img.ID,
		UserID:     img.UserID,
		StorageKey: img.StorageKey,
		URL:        img.URL,
		Status:     string(img.Status),
		Width:      img.Width,
		Height:     img.Height,
		Bytes:      img.ByteSize,
		ErrorCode:  img.ErrorCode,
		CreatedAt:  formatTime(img.CreatedAt),
		UpdatedAt:  formatTime(img.UpdatedAt),
	}
}

// FromImages converts a slice of image rows, never returning nil.
func FromImages(images []*store.Image) []ImageItem {
	out := make([]ImageItem, 0, len(images))
	for _, img := range images {
		if img == nil {
			continue
		}
		out = append(out, FromImage(img))
	}
	return out
}

// FromUser converts a member record.
func FromUser(u *store.User) UserItem {
	if u == nil {
		return UserItem{}
	}
	return UserItem{
		ID:         u.ID,
		AuthUserID: u.AuthUserID,
		Email:      u.Email,
		Username:   u.Username,
		Approved:   u.Approved,
		CreatedAt:  formatTime(u.CreatedAt),
	}
}

// FromResult converts a pipeline result to the upload success shape.
func FromResult(res *ingest.Result, requestID string) UploadResponse {
	if res == nil {
		return UploadResponse{RequestID: requestID}
	}
	return UploadResponse{
		URL:       res.URL,
		Filename:  res.Filename,
		ImageID:   res.ImageID,
		Width:     res.Width,
		Height:    res.Height,
		Bytes:     res.Bytes,
		RequestID: requestID,
	}
}

// StatusCounts flattens per-status image counts into string keys, filling in
// every known status.
func StatusCounts(counts map[store.ImageStatus]int) map[string]int {
	out := map[string]int{
		string(store.StatusPending):   0,
		string(store.StatusStored):    0,
		string(store.StatusAbandoned): 0,
	}
	for status, n := range counts {
		out[string(status)] = n
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

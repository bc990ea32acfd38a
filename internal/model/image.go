package model

import "time"

// Image describes an object stored in the image bucket.
type Image struct {
	Key          string `json:"key"`
	Bucket       string `json:"bucket"`
	Location     string `json:"location"`
	MimeType     string `json:"mimetype"`
	Size         int64  `json:"size"`
	OriginalName string `json:"original_name,omitempty"`
}

// ImageCleanupJob is published when a stored image is no longer referenced.
type ImageCleanupJob struct {
	Key         string    `json:"key"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

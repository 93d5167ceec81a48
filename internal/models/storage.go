package models

import "time"

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// UploadResult holds the outcome of an upload.
type UploadResult struct {
	Key       string
	Bucket    string
	SizeBytes int64
	Location  string
	Duration  time.Duration
	Error     error
}

package models

import "time"

// StoredImage is a file kept in the uploads directory.
type StoredImage struct {
	Filename string    `json:"filename" msgpack:"filename"`
	URL      string    `json:"url" msgpack:"url"`
	Size     int64     `json:"-" msgpack:"-"`
	ModTime  time.Time `json:"-" msgpack:"-"`
}

// UploadResult is the per-file outcome of an upload request.
type UploadResult struct {
	Original  string `json:"original"`
	Stored    string `json:"stored"`
	Duplicate bool   `json:"duplicate"`
	URL       string `json:"url"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the file was rejected.
func (r UploadResult) Failed() bool {
	return r.Error != ""
}

// ImageInfo describes a stored image in more detail than the gallery listing.
type ImageInfo struct {
	Filename    string     `json:"filename"`
	URL         string     `json:"url"`
	Size        int64      `json:"size"`
	ModifiedAt  time.Time  `json:"modifiedAt"`
	Format      string     `json:"format"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	TakenAt     *time.Time `json:"takenAt,omitempty"`
	CameraModel string     `json:"cameraModel,omitempty"`
}

package models

// Gallery feed event types.
const (
	EventImageAdded = "image:added"
)

// GalleryEvent is pushed to connected gallery clients.
type GalleryEvent struct {
	Type      string       `json:"type"`
	Image     *StoredImage `json:"image,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

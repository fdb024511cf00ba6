package media

import (
	"strings"
	"time"
)

// MediaStatus represents the lifecycle of a registered media item.
type MediaStatus string

const (
	MediaRegistered MediaStatus = "registered"
	MediaProbing    MediaStatus = "probing"
	MediaReady      MediaStatus = "ready"
	MediaFailed     MediaStatus = "failed"
	MediaDeleted    MediaStatus = "deleted"
)

var mediaStatusSet = map[MediaStatus]struct{}{
	MediaRegistered: {},
	MediaProbing:    {},
	MediaReady:      {},
	MediaFailed:     {},
	MediaDeleted:    {},
}

// ParseMediaStatus normalizes a raw status string.
func ParseMediaStatus(raw string) (MediaStatus, bool) {
	status := MediaStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := mediaStatusSet[status]
	return status, ok
}

// TechMetadata holds the probed technical properties of a source.
type TechMetadata struct {
	Duration   float64 `json:"duration"`
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	HasAudio   bool    `json:"has_audio"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Bitrate    int64   `json:"bitrate,omitempty"`
}

// Media represents one source video and its probed metadata.
type Media struct {
	ID          string
	SourceURI   string
	Title       string
	Description string
	Status      MediaStatus
	Tech        *TechMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ready reports whether the media has usable technical metadata.
func (m *Media) Ready() bool {
	return m != nil && m.Status == MediaReady && m.Tech != nil && m.Tech.Duration > 0
}

package domain

// MediaKind distinguishes the payload of a stream variant.
type MediaKind string

const (
	MediaCombined  MediaKind = "combined"
	MediaVideoOnly MediaKind = "video_only"
	MediaAudioOnly MediaKind = "audio_only"
)

// StreamDescriptor identifies one downloadable variant of a source video.
type StreamDescriptor struct {
	Itag     int
	Kind     MediaKind
	Height   int
	Bitrate  int
	MimeType string
	Label    string
}

// VideoInfo is the metadata surfaced to clients before a download starts.
type VideoInfo struct {
	ID          string
	Title       string
	Author      string
	DurationSec int
	Views       int
	Thumbnail   string
}

// Catalog is the full set of stream variants available for a video,
// partitioned by kind.
type Catalog struct {
	Combined  []StreamDescriptor
	VideoOnly []StreamDescriptor
	AudioOnly []StreamDescriptor
}

// Plan is the outcome of stream selection: either a single combined stream
// or a video-only plus audio-only pair that must be muxed.
type Plan struct {
	Combined *StreamDescriptor
	Video    *StreamDescriptor
	Audio    *StreamDescriptor

	// Fallback is set when the requested quality was not available and a
	// lower one was substituted.
	Fallback bool
	// Height is the vertical resolution of the chosen video stream, used
	// for fallback file naming.
	Height int
}

// NeedsMux reports whether the plan requires merging separate video and
// audio streams.
func (p Plan) NeedsMux() bool {
	return p.Combined == nil
}

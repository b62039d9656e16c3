// Package ffmpeg shells out to ffmpeg and ffprobe for merging and probing
// media files.
package ffmpeg

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Processor merges and probes media files using ffmpeg.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	muxTimeout  time.Duration
}

// NewProcessor creates a new Processor, resolving the given binary names
// through PATH. Empty names default to "ffmpeg" and "ffprobe". A positive
// muxTimeout bounds each Merge call.
func NewProcessor(ffmpegBin, ffprobeBin string, muxTimeout time.Duration) (*Processor, error) {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		muxTimeout:  muxTimeout,
	}, nil
}

// MediaInfo contains metadata about a media file.
type MediaInfo struct {
	Duration   float64 // Duration in seconds
	Width      int
	Height     int
	HasAudio   bool
	AudioCodec string
	VideoCodec string
	Bitrate    int64
}

// Probe extracts metadata from a media file.
func (p *Processor) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	type ffprobeFormat struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	}
	type ffprobeStream struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	}
	type ffprobeOutput struct {
		Format  ffprobeFormat   `json:"format"`
		Streams []ffprobeStream `json:"streams"`
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if parsed.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}
	if parsed.Format.BitRate != "" {
		if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
			info.Bitrate = br
		}
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
			if info.Width == 0 && s.Width > 0 {
				info.Width = s.Width
			}
			if info.Height == 0 && s.Height > 0 {
				info.Height = s.Height
			}
		}
	}

	return info, nil
}

// Merge combines a video-only file and an audio-only file into outputPath,
// copying the video track and encoding audio to AAC. progress, if non-nil,
// receives the merge completion ratio in [0, 1].
func (p *Processor) Merge(ctx context.Context, videoPath, audioPath, outputPath string, progress func(float64)) error {
	ctx, cancel := p.mergeContext(ctx)
	defer cancel()

	// Duration of the video track anchors the progress ratio. A failed
	// probe only disables progress reporting.
	var totalUs int64
	if info, err := p.Probe(ctx, videoPath); err == nil && info.Duration > 0 {
		totalUs = int64(info.Duration * 1e6)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-progress", "pipe:1",
		"-nostats",
		"-loglevel", "error",
		outputPath,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	parseProgress(stdout, totalUs, progress)

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg merge: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg merge: %w", err)
	}

	if progress != nil {
		progress(1)
	}
	return nil
}

// mergeContext bounds a merge by the configured mux timeout.
func (p *Processor) mergeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.muxTimeout > 0 {
		return context.WithTimeout(ctx, p.muxTimeout)
	}
	return context.WithCancel(ctx)
}

// parseProgress reads ffmpeg -progress key=value output and reports the
// out_time_us position against totalUs.
func parseProgress(r io.Reader, totalUs int64, progress func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if progress == nil || totalUs <= 0 {
				continue
			}
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				continue
			}
			ratio := float64(us) / float64(totalUs)
			if ratio < 0 {
				ratio = 0
			}
			if ratio > 1 {
				ratio = 1
			}
			progress(ratio)
		case "progress":
			if strings.TrimSpace(value) == "end" {
				return
			}
		}
	}
}

// ExtractAudio converts the audio track of inputPath into an mp3 file at
// outputPath.
func (p *Processor) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", "192k",
		"-loglevel", "error",
		outputPath,
	)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg extract audio: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}
	return nil
}

// IsAvailable checks if ffmpeg and ffprobe are available on the system.
func IsAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	if err != nil {
		return false
	}
	_, err = exec.LookPath("ffprobe")
	return err == nil
}

// GetVersion returns the ffmpeg version string.
func GetVersion() (string, error) {
	cmd := exec.Command("ffmpeg", "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}

package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iconidentify/dlab/internal/domain"
)

// defaultQualityLadder is shown when a catalog yields no usable resolutions.
var defaultQualityLadder = []string{"1080p", "720p", "480p", "360p"}

// SelectPlan picks the streams to fetch for a quality request.
//
// For audio requests it returns the highest-bitrate audio-only stream,
// falling back to the best combined stream when no audio-only variant
// exists. For video requests it prefers an exact-resolution combined
// stream, then an exact-resolution video-only stream paired with the best
// audio, and finally falls back to the best combined stream available.
func SelectPlan(cat domain.Catalog, requestedQuality string, wantsAudio bool) (domain.Plan, error) {
	if wantsAudio {
		if audio := bestByBitrate(cat.AudioOnly); audio != nil {
			return domain.Plan{Audio: audio}, nil
		}
		if combined := bestByHeight(cat.Combined); combined != nil {
			return domain.Plan{Combined: combined, Height: combined.Height}, nil
		}
		return domain.Plan{}, domain.ErrNoAudioAvailable
	}

	// An empty quality asks for the best available outright; that is not a
	// substitution, so the plan carries no fallback marker.
	if strings.TrimSpace(requestedQuality) == "" {
		if combined := bestByHeight(cat.Combined); combined != nil {
			return domain.Plan{Combined: combined, Height: combined.Height}, nil
		}
		if video := bestByHeight(cat.VideoOnly); video != nil {
			if audio := bestByBitrate(cat.AudioOnly); audio != nil {
				return domain.Plan{Video: video, Audio: audio, Height: video.Height}, nil
			}
		}
		return domain.Plan{}, fmt.Errorf("%w for quality %q", domain.ErrNoStreamsAvailable, requestedQuality)
	}

	target := parseHeight(requestedQuality)

	if combined := exactMatch(cat.Combined, target, requestedQuality); combined != nil {
		return domain.Plan{Combined: combined, Height: combined.Height}, nil
	}

	if video := exactMatch(cat.VideoOnly, target, requestedQuality); video != nil {
		if audio := bestByBitrate(cat.AudioOnly); audio != nil {
			return domain.Plan{Video: video, Audio: audio, Height: video.Height}, nil
		}
	}

	if combined := bestByHeight(cat.Combined); combined != nil {
		return domain.Plan{Combined: combined, Fallback: true, Height: combined.Height}, nil
	}

	// No combined streams at all. Pair the best video-only stream with the
	// best audio so high-quality-only catalogs still produce a download.
	if video := bestByHeight(cat.VideoOnly); video != nil {
		if audio := bestByBitrate(cat.AudioOnly); audio != nil {
			return domain.Plan{Video: video, Audio: audio, Fallback: true, Height: video.Height}, nil
		}
	}

	return domain.Plan{}, fmt.Errorf("%w for quality %q", domain.ErrNoStreamsAvailable, requestedQuality)
}

// AvailableQualities lists the resolutions a catalog can satisfy, highest
// first. An empty catalog yields the default ladder.
func AvailableQualities(cat domain.Catalog) []string {
	seen := make(map[int]bool)
	var heights []int
	for _, streams := range [][]domain.StreamDescriptor{cat.Combined, cat.VideoOnly} {
		for _, s := range streams {
			if s.Height > 0 && !seen[s.Height] {
				seen[s.Height] = true
				heights = append(heights, s.Height)
			}
		}
	}
	if len(heights) == 0 {
		return append([]string(nil), defaultQualityLadder...)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	out := make([]string, len(heights))
	for i, h := range heights {
		out[i] = strconv.Itoa(h) + "p"
	}
	return out
}

// parseHeight extracts the vertical resolution from a quality label such as
// "720" or "720p". Returns 0 for unparseable input.
func parseHeight(quality string) int {
	q := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(quality)), "p")
	h, err := strconv.Atoi(q)
	if err != nil {
		return 0
	}
	return h
}

// exactMatch finds a stream matching the requested resolution by height or
// by label. First encountered wins.
func exactMatch(streams []domain.StreamDescriptor, target int, requested string) *domain.StreamDescriptor {
	for i := range streams {
		s := &streams[i]
		if target > 0 && s.Height == target {
			return s
		}
		if requested != "" && s.Label != "" && strings.EqualFold(s.Label, requested) {
			return s
		}
	}
	return nil
}

// bestByHeight returns the stream with the greatest height. First
// encountered wins ties.
func bestByHeight(streams []domain.StreamDescriptor) *domain.StreamDescriptor {
	var best *domain.StreamDescriptor
	for i := range streams {
		s := &streams[i]
		if best == nil || s.Height > best.Height {
			best = s
		}
	}
	return best
}

// bestByBitrate returns the stream with the greatest bitrate. First
// encountered wins ties.
func bestByBitrate(streams []domain.StreamDescriptor) *domain.StreamDescriptor {
	var best *domain.StreamDescriptor
	for i := range streams {
		s := &streams[i]
		if best == nil || s.Bitrate > best.Bitrate {
			best = s
		}
	}
	return best
}

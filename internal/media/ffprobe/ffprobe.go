package ffprobe

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index             int    `json:"index"`
	CodecName         string `json:"codec_name"`
	CodecType         string `json:"codec_type"`
	Duration          string `json:"duration"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	RFrameRate        string `json:"r_frame_rate"`
	AvgFrameRate      string `json:"avg_frame_rate"`
	SampleAspectRatio string `json:"sample_aspect_ratio"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// Args returns the ffprobe arguments (without the binary) for path.
func Args(path string) []string {
	return []string{"-v", "error", "-hide_banner", "-print_format", "json", "-show_format", "-show_streams", "--", path}
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Result{}, errors.New("ffprobe parse: empty output")
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// PrimaryVideo returns the first video stream.
func (r Result) PrimaryVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration in seconds, falling back to
// the primary video stream, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if video, ok := r.PrimaryVideo(); ok {
		if d := parseFloat(video.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// FrameRate returns the average frame rate, falling back to the base rate.
func (s Stream) FrameRate() float64 {
	if rate := parseRational(s.AvgFrameRate, '/'); rate > 0 {
		return rate
	}
	return parseRational(s.RFrameRate, '/')
}

// PixelAspect returns the sample aspect ratio; unknown or zero ratios are 1.
func (s Stream) PixelAspect() float64 {
	if ratio := parseRational(s.SampleAspectRatio, ':'); ratio > 0 {
		return ratio
	}
	return 1
}

// parseRational decodes "num<sep>den" or a plain number; invalid input is 0.
func parseRational(value string, sep byte) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, string(sep))
	if !found {
		v := parseFloat(value)
		if math.IsNaN(v) {
			return 0
		}
		return v
	}
	n, d := parseFloat(num), parseFloat(den)
	if math.IsNaN(n) || math.IsNaN(d) || d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

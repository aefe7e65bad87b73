package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Artifact is one extracted still image.
type Artifact struct {
	Timestamp   float64
	ContentType string
	Data        []byte
}

// Extractor pulls JPEG frames at given offsets using ffmpeg.
type Extractor struct {
	Binary string
	// Width scales frames to this width keeping aspect. Zero keeps the source size.
	Width int
}

// NewExtractor returns an extractor for binary.
func NewExtractor(binary string, width int) *Extractor {
	return &Extractor{Binary: binary, Width: width}
}

// Extract runs ffmpeg once per timestamp and returns frames in the same order.
// It stops at the first failure.
func (e *Extractor) Extract(ctx context.Context, source string, timestamps []float64) ([]Artifact, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("ffmpeg: empty source")
	}
	out := make([]Artifact, 0, len(timestamps))
	for _, ts := range timestamps {
		data, err := e.frameAt(ctx, source, ts)
		if err != nil {
			return out, err
		}
		out = append(out, Artifact{Timestamp: ts, ContentType: "image/jpeg", Data: data})
	}
	return out, nil
}

func (e *Extractor) frameAt(ctx context.Context, source string, ts float64) ([]byte, error) {
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", source,
		"-frames:v", "1",
	}
	if e.Width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", e.Width))
	}
	args = append(args, "-f", "image2", "-c:v", "mjpeg", "pipe:1")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffmpeg frame at %.3fs: %w: %s", ts, err, msg)
		}
		return nil, fmt.Errorf("ffmpeg frame at %.3fs: %w", ts, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg frame at %.3fs: no image data", ts)
	}
	return stdout.Bytes(), nil
}

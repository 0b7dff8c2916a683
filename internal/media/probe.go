package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// FFProber probes media duration with ffprobe.
type FFProber struct{}

func (FFProber) Duration(ctx context.Context, path string) (float64, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return data.Format.DurationSeconds, nil
}

// FFMpegThumbnailer extracts frames by invoking the ffmpeg binary.
type FFMpegThumbnailer struct {
	// Binary overrides the ffmpeg executable path; empty means "ffmpeg"
	// from PATH.
	Binary string
}

func (t FFMpegThumbnailer) ExtractFrame(ctx context.Context, src, dst string, atSeconds int, size string) error {
	bin := t.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-ss", strconv.Itoa(atSeconds),
		"-i", src,
		"-frames:v", "1",
		"-s", size,
		"-y",
		dst,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", src, err, out)
	}
	return nil
}

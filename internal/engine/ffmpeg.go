package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpegConverter transcodes audio by shelling out to ffmpeg.
type FFmpegConverter struct {
	binary string
}

// NewFFmpegConverter creates a converter using the given ffmpeg binary.
func NewFFmpegConverter(binary string) *FFmpegConverter {
	return &FFmpegConverter{binary: binary}
}

// Convert transcodes the file into targetFormat next to the original,
// returning the new path.
func (c *FFmpegConverter) Convert(ctx context.Context, path, targetFormat string, opts ConvertOptions) (string, error) {
	outPath := replaceExt(path, targetFormat)
	args := convertArgs(path, outPath, opts)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("format conversion to %s failed: %w: %s", targetFormat, err, out)
	}
	return outPath, nil
}

func convertArgs(inPath, outPath string, opts ConvertOptions) []string {
	args := []string{"-y", "-i", inPath}
	if opts.BitrateKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", opts.BitrateKbps))
	}
	for k, v := range opts.Metadata {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", k, v))
	}
	return append(args, outPath)
}

func replaceExt(path, format string) string {
	if idx := strings.LastIndex(path, "."); idx > strings.LastIndex(path, "/") {
		return path[:idx+1] + format
	}
	return path + "." + format
}

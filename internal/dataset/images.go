package dataset

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/banshee-data/evtrack/internal/eklt"
	"github.com/banshee-data/evtrack/internal/security"
)

// ImageRef is one entry of an image list.
type ImageRef struct {
	Timestamp float64
	Path      string
}

// LoadImageList reads an image list from disk. Relative paths are
// resolved against the list's directory.
func LoadImageList(path string) ([]ImageRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image list: %w", err)
	}
	defer f.Close()

	refs, err := ReadImageList(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return refs, nil
}

// ReadImageList parses "t path" lines. Relative paths are joined to
// baseDir and may not escape it; absolute paths are taken as given.
func ReadImageList(r io.Reader, baseDir string) ([]ImageRef, error) {
	var out []ImageRef
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w %d: want 2 fields, got %d", ErrMalformedLine, lineNo, len(parts))
		}
		ts, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w %d: timestamp: %v", ErrMalformedLine, lineNo, err)
		}
		p := parts[1]
		if !filepath.IsAbs(p) {
			if p, err = security.ResolveWithin(baseDir, p); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
		out = append(out, ImageRef{Timestamp: ts, Path: p})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image list: %w", err)
	}
	return out, nil
}

// LoadImage decodes a PNG, JPEG, BMP or TIFF frame and converts it to a
// single-tile grayscale image. When width and height are positive and
// differ from the source size the frame is resampled bilinearly.
func LoadImage(path string, width, height int) (*eklt.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return toGray(src, width, height, format), nil
}

func toGray(src image.Image, width, height int, format string) *eklt.Image {
	sb := src.Bounds()
	if width <= 0 || height <= 0 {
		width, height = sb.Dx(), sb.Dy()
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if width == sb.Dx() && height == sb.Dy() {
		xdraw.Draw(dst, dst.Bounds(), src, sb.Min, xdraw.Src)
	} else {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, sb, xdraw.Src, nil)
		eklt.Tracef("resampled %s frame %dx%d -> %dx%d", format, sb.Dx(), sb.Dy(), width, height)
	}
	return eklt.FromGray(dst)
}

package eklt

import (
	"image"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// CornerDetector finds strong Harris corners, in the manner of
// goodFeaturesToTrack with the Harris response enabled.
type CornerDetector struct {
	QualityLevel float64 // corners must reach QualityLevel * max response
	MinDistance  float64 // minimum Euclidean spacing between returned corners
	BlockSize    int     // structure tensor window side length
	K            float64 // Harris curvature constant
}

// Detect returns up to maxCorners corners of img, strongest first. Pixels
// where mask is zero are never returned; a nil mask allows every pixel.
// The mask must be sized to the image bounds.
func (d CornerDetector) Detect(img *image.Gray, mask *Mask, maxCorners int) []Point2D {
	if maxCorners <= 0 || img == nil {
		return nil
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 3 || h < 3 {
		return nil
	}

	resp := d.response(img, w, h)
	if mask != nil {
		for i, m := range mask.Pix {
			if m == 0 {
				resp[i] = 0
			}
		}
	}

	maxResp := floats.Max(resp)
	if maxResp <= 0 {
		return nil
	}
	threshold := d.QualityLevel * maxResp

	type candidate struct {
		x, y int
		r    float64
	}
	var cands []candidate
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			r := resp[y*w+x]
			if r <= threshold || !isLocalMax(resp, w, x, y) {
				continue
			}
			cands = append(cands, candidate{x: x, y: y, r: r})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].r > cands[j].r })

	minDist2 := d.MinDistance * d.MinDistance
	corners := make([]Point2D, 0, min(maxCorners, len(cands)))
	for _, c := range cands {
		p := Point2D{X: float64(c.x), Y: float64(c.y)}
		if tooClose(corners, p, minDist2) {
			continue
		}
		corners = append(corners, p)
		if len(corners) == maxCorners {
			break
		}
	}
	return corners
}

// response computes the Harris measure det(M) - k*trace(M)^2 where M is
// the structure tensor of Sobel gradients summed over a BlockSize window.
func (d CornerDetector) response(img *image.Gray, w, h int) []float64 {
	at := func(x, y int) float64 {
		x = clampInt(x, 0, w-1)
		y = clampInt(y, 0, h-1)
		return float64(img.Pix[img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)])
	}

	n := w * h
	ixx := make([]float64, n)
	iyy := make([]float64, n)
	ixy := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			gy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*w + x
			ixx[i] = gx * gx
			iyy[i] = gy * gy
			ixy[i] = gx * gy
		}
	}

	half := max(d.BlockSize, 1) / 2
	resp := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sxx, syy, sxy float64
			for by := max(y-half, 0); by <= min(y+half, h-1); by++ {
				row := by * w
				for bx := max(x-half, 0); bx <= min(x+half, w-1); bx++ {
					sxx += ixx[row+bx]
					syy += iyy[row+bx]
					sxy += ixy[row+bx]
				}
			}
			tr := sxx + syy
			resp[y*w+x] = sxx*syy - sxy*sxy - d.K*tr*tr
		}
	}
	return resp
}

func isLocalMax(resp []float64, w, x, y int) bool {
	r := resp[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if resp[(y+dy)*w+x+dx] > r {
				return false
			}
		}
	}
	return true
}

func tooClose(corners []Point2D, p Point2D, minDist2 float64) bool {
	if minDist2 <= 0 {
		return false
	}
	for _, c := range corners {
		dx, dy := c.X-p.X, c.Y-p.Y
		if dx*dx+dy*dy < minDist2 {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

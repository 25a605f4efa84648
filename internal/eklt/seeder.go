package eklt

import "math"

// Mask is a binary eligibility map; zero pixels are excluded from seeding.
type Mask struct {
	W, H int
	Pix  []uint8
}

// NewMask returns a mask that allows every pixel.
func NewMask(w, h int) *Mask {
	m := &Mask{W: w, H: h, Pix: make([]uint8, w*h)}
	for i := range m.Pix {
		m.Pix[i] = 1
	}
	return m
}

// At reports whether (x, y) is eligible.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Pix[y*m.W+x] != 0
}

// ClearRect zeroes the inclusive rectangle [x0,x1]x[y0,y1], clamped to the mask.
func (m *Mask) ClearRect(x0, y0, x1, y1 int) {
	x0, x1 = max(x0, 0), min(x1, m.W-1)
	y0, y1 = max(y0, 0), min(y1, m.H-1)
	for y := y0; y <= y1; y++ {
		row := m.Pix[y*m.W : (y+1)*m.W]
		for x := x0; x <= x1; x++ {
			row[x] = 0
		}
	}
}

// Ratio returns the fraction of eligible pixels.
func (m *Mask) Ratio() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return float64(n) / float64(len(m.Pix))
}

// MaskedSeeder extracts new features away from the image border and from
// existing patches.
type MaskedSeeder struct {
	params Params
}

// NewMaskedSeeder returns a seeder using a copy of params.
func NewMaskedSeeder(params Params) *MaskedSeeder {
	return &MaskedSeeder{params: params}
}

// SetParams replaces the cached params.
func (s *MaskedSeeder) SetParams(params Params) {
	s.params = params
}

// BuildMask returns the eligibility mask for an image of size w x h: a
// border of HalfPatch pixels is excluded, and so is the closed square of
// half-width MinDistance around every patch centre.
func (s *MaskedSeeder) BuildMask(w, h int, patches []AsyncPatch) *Mask {
	m := NewMask(w, h)
	hp := s.params.HalfPatch()
	if hp > 0 {
		m.ClearRect(0, 0, w-1, hp-1)
		m.ClearRect(0, h-hp, w-1, h-1)
		m.ClearRect(0, 0, hp-1, h-1)
		m.ClearRect(w-hp, 0, w-1, h-1)
	}

	d := float64(s.params.MinDistance)
	for _, p := range patches {
		c := p.Center()
		m.ClearRect(
			int(math.Ceil(c.X-d)), int(math.Ceil(c.Y-d)),
			int(math.Floor(c.X+d)), int(math.Floor(c.Y+d)),
		)
	}
	return m
}

// Extract returns up to n corners of img that are eligible under the mask
// built from patches, strongest first. An empty result is not an error.
func (s *MaskedSeeder) Extract(img *Image, patches []AsyncPatch, n int) []Point2D {
	if img == nil || n <= 0 {
		return nil
	}
	w, h := img.Width(), img.Height()
	mask := s.BuildMask(w, h, patches)

	det := CornerDetector{
		QualityLevel: s.params.QualityLevel,
		MinDistance:  float64(s.params.MinDistance),
		BlockSize:    s.params.BlockSize,
		K:            s.params.HarrisK,
	}
	Diagf("Harris corner detector with N=%d quality=%g min_dist=%d block_size=%d k=%g mask_ratio=%.3f",
		n, det.QualityLevel, s.params.MinDistance, det.BlockSize, det.K, mask.Ratio())

	features := det.Detect(img.Gray, mask, n)
	Diagf("Extracted %d new features", len(features))
	return features
}

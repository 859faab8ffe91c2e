package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
)

// SimDriver emulates an 8-bit mono sensor with a linear response: mean
// brightness = ADUPerMs * exposureMs, clipped at full well. It lets the
// daemon run end to end without camera hardware and gives tests a
// deterministic sensor model.
type SimDriver struct {
	// ADUPerMs is the simulated sky brightness in ADU per millisecond of
	// exposure. Lower values emulate darker skies.
	ADUPerMs float64
	// FullWell is the saturation level, 255 for 8-bit readout.
	FullWell float64

	Width  int
	Height int
}

// NewSimDriver returns a simulated 8-bit sensor.
func NewSimDriver(aduPerMs float64) *SimDriver {
	if aduPerMs <= 0 {
		aduPerMs = 0.05
	}
	return &SimDriver{
		ADUPerMs: aduPerMs,
		FullWell: 255,
		Width:    640,
		Height:   480,
	}
}

func (d *SimDriver) brightness(exposureMs float64) float64 {
	b := d.ADUPerMs * exposureMs
	if b > d.FullWell {
		b = d.FullWell
	}
	return b
}

// Acquire returns the mean brightness of the simulated central region.
func (d *SimDriver) Acquire(ctx context.Context, exposureMs float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return d.brightness(exposureMs), nil
}

// AcquireFull renders a synthetic starfield at the simulated sky level and
// returns it PNG-encoded.
func (d *SimDriver) AcquireFull(ctx context.Context, exposureMs float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	level := uint8(d.brightness(exposureMs))
	img := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	for i := range img.Pix {
		img.Pix[i] = level
	}

	// Sprinkle stars; seeded by exposure so identical requests render the
	// same frame.
	rng := rand.New(rand.NewSource(int64(exposureMs * 1000)))
	starCount := d.Width * d.Height / 2000
	for i := 0; i < starCount; i++ {
		x := rng.Intn(d.Width)
		y := rng.Intn(d.Height)
		img.SetGray(x, y, color.Gray{Y: 255})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

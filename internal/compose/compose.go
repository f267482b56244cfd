// Package compose renders the still composite image: the album cover
// centered on the generated background with a soft drop shadow.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	// Background and cover inputs arrive as JPEG or PNG.
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// Static errors for compose operations.
var (
	// ErrInvalidScale is returned when the cover scale is outside (0, 1].
	ErrInvalidScale = errors.New("compose: scale must be in (0, 1]")
	// ErrDecodeBackground is returned when the background image fails to decode.
	ErrDecodeBackground = errors.New("compose: decode background")
	// ErrDecodeCover is returned when the cover image fails to decode.
	ErrDecodeCover = errors.New("compose: decode cover")
)

// Shadow constants matching the preview rendering: a 50%-opacity black
// shadow, blurred with radius 20 and offset 10px down.
const (
	shadowBlurRadius = 20
	shadowOffsetY    = 10
	shadowAlpha      = 128
)

// Compose draws the cover as a centered square over the background.
//
// The canvas always has the background's exact dimensions. The cover is
// scaled to a square of side min(width, height) * scale and centered, with
// the drop shadow painted underneath. The result is deterministic for
// identical inputs.
func Compose(background, cover image.Image, scale float64) (*image.RGBA, error) {
	if scale <= 0 || scale > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidScale, scale)
	}

	bounds := background.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), background, bounds.Min, draw.Src)

	side := coverSide(bounds.Dx(), bounds.Dy(), scale)
	x := (bounds.Dx() - side) / 2
	y := (bounds.Dy() - side) / 2

	drawShadow(canvas, x, y+shadowOffsetY, side)

	scaled := image.NewRGBA(image.Rect(0, 0, side, side))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), cover, cover.Bounds(), xdraw.Over, nil)
	draw.Draw(canvas, image.Rect(x, y, x+side, y+side), scaled, image.Point{}, draw.Over)

	return canvas, nil
}

// ComposePNG decodes the raw background and cover bytes, composes them,
// and returns the result encoded as PNG.
func ComposePNG(background, cover []byte, scale float64) ([]byte, error) {
	bg, _, err := image.Decode(bytes.NewReader(background))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeBackground, err)
	}

	fg, _, err := image.Decode(bytes.NewReader(cover))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeCover, err)
	}

	canvas, err := Compose(bg, fg, scale)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("compose: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// coverSide returns the side length of the centered cover square.
func coverSide(width, height int, scale float64) int {
	side := int(float64(min(width, height)) * scale)
	if side < 1 {
		side = 1
	}
	return side
}

// drawShadow paints a blurred 50%-black square under the cover position.
// The blur is approximated with three passes of a box blur over an alpha
// mask, which converges on a gaussian of the configured radius.
func drawShadow(canvas *image.RGBA, x, y, side int) {
	pad := shadowBlurRadius * 2
	maskW := side + 2*pad
	maskH := side + 2*pad

	mask := make([]float64, maskW*maskH)
	for my := pad; my < pad+side; my++ {
		for mx := pad; mx < pad+side; mx++ {
			mask[my*maskW+mx] = shadowAlpha
		}
	}

	boxRadius := shadowBlurRadius / 3
	if boxRadius < 1 {
		boxRadius = 1
	}
	for range 3 {
		mask = boxBlur(mask, maskW, maskH, boxRadius)
	}

	bounds := canvas.Bounds()
	for my := range maskH {
		for mx := range maskW {
			a := mask[my*maskW+mx]
			if a < 1 {
				continue
			}
			px := x - pad + mx
			py := y - pad + my
			if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py >= bounds.Max.Y {
				continue
			}
			blendShadowPixel(canvas, px, py, a/255)
		}
	}
}

// blendShadowPixel darkens one pixel toward black by the given coverage.
func blendShadowPixel(canvas *image.RGBA, x, y int, coverage float64) {
	c := canvas.RGBAAt(x, y)
	canvas.SetRGBA(x, y, color.RGBA{
		R: uint8(float64(c.R) * (1 - coverage)),
		G: uint8(float64(c.G) * (1 - coverage)),
		B: uint8(float64(c.B) * (1 - coverage)),
		A: c.A,
	})
}

// boxBlur applies a separable box blur of the given radius to a mask.
func boxBlur(src []float64, w, h, radius int) []float64 {
	tmp := make([]float64, len(src))
	dst := make([]float64, len(src))
	window := float64(2*radius + 1)

	// Horizontal pass
	for y := range h {
		row := y * w
		var sum float64
		for x := -radius; x <= radius; x++ {
			sum += at(src, row, x, w)
		}
		for x := range w {
			tmp[row+x] = sum / window
			sum += at(src, row, x+radius+1, w) - at(src, row, x-radius, w)
		}
	}

	// Vertical pass
	for x := range w {
		var sum float64
		for y := -radius; y <= radius; y++ {
			sum += atCol(tmp, x, y, w, h)
		}
		for y := range h {
			dst[y*w+x] = sum / window
			sum += atCol(tmp, x, y+radius+1, w, h) - atCol(tmp, x, y-radius, w, h)
		}
	}

	return dst
}

func at(mask []float64, row, x, w int) float64 {
	if x < 0 || x >= w {
		return 0
	}
	return mask[row+x]
}

func atCol(mask []float64, x, y, w, h int) float64 {
	if y < 0 || y >= h {
		return 0
	}
	return mask[y*w+x]
}

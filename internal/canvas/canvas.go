// Package canvas is an offscreen 2D surface: draw a frame, optionally
// mirrored, and serialise it as a data URL.
package canvas

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/acentior/camera-preview/pkg/size"
)

// Format is an output MIME type.
type Format string

const (
	PNG  Format = "image/png"
	JPEG Format = "image/jpeg"
)

// emptyDataURL is what browsers return for a canvas without pixels.
const emptyDataURL = "data:,"

type Canvas struct {
	img *image.RGBA
}

func New(width, height int) *Canvas {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (c *Canvas) Width() int { return c.img.Bounds().Dx() }

func (c *Canvas) Height() int { return c.img.Bounds().Dy() }

// Image exposes the backing pixels.
func (c *Canvas) Image() *image.RGBA { return c.img }

// DrawImage scales src onto the whole canvas. With mirror set the drawing is
// flipped horizontally, as translate(width, 0) followed by scale(-1, 1).
func (c *Canvas) DrawImage(src image.Image, mirror bool) {
	dst := c.img
	sb := src.Bounds()
	if dst.Bounds().Empty() || sb.Empty() {
		return
	}

	sx := float64(dst.Bounds().Dx()) / float64(sb.Dx())
	sy := float64(dst.Bounds().Dy()) / float64(sb.Dy())

	if !mirror && sx == 1 && sy == 1 {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return
	}

	m := f64.Aff3{
		sx, 0, -sx * float64(sb.Min.X),
		0, sy, -sy * float64(sb.Min.Y),
	}
	if mirror {
		m[0], m[2] = -sx, float64(dst.Bounds().Dx())+sx*float64(sb.Min.X)
	}
	draw.NearestNeighbor.Transform(dst, m, src, sb, draw.Src, nil)
}

// Resize rescales the canvas contents to target. Unset dimensions keep the
// aspect ratio; a zero target leaves the canvas unchanged.
func (c *Canvas) Resize(target size.Size) {
	if target.Width <= 0 && target.Height <= 0 {
		return
	}
	if target.Width == c.Width() && target.Height == c.Height() {
		return
	}
	w, h := target.Width, target.Height
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	resized := resize.Resize(uint(w), uint(h), c.img, resize.Lanczos3)
	c.img = ToRGBA(resized)
}

// Encode serialises the canvas. quality is used for JPEG only (1..100).
func (c *Canvas) Encode(format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case PNG, "":
		if err := png.Encode(&buf, c.img); err != nil {
			return nil, err
		}
	case JPEG:
		if quality <= 0 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, c.img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	return buf.Bytes(), nil
}

// ToDataURL returns "data:<format>;base64,<payload>".
func (c *Canvas) ToDataURL(format Format, quality int) (string, error) {
	if c.img.Bounds().Empty() {
		return emptyDataURL, nil
	}
	if format == "" {
		format = PNG
	}
	data, err := c.Encode(format, quality)
	if err != nil {
		return "", err
	}
	return "data:" + string(format) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// StripDataURL drops the "data:<mime>;base64," prefix of url.
func StripDataURL(url string) string {
	if !strings.HasPrefix(url, "data:") {
		return url
	}
	if i := strings.Index(url, ";base64,"); i >= 0 {
		return url[i+len(";base64,"):]
	}
	return url
}

// ToRGBA copies img into a new RGBA image anchored at the origin. The copy
// stays valid after the source buffer is reused.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

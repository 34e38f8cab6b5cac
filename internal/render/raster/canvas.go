// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package raster is the software drawing surface used by the render engine.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var boldFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

// Canvas is an RGBA surface with cover scaling and bold text. Not safe for
// concurrent use.
type Canvas struct {
	img   *image.RGBA
	font  *opentype.Font
	faces map[float64]font.Face
}

// NewCanvas allocates a w×h canvas.
func NewCanvas(w, h int) (*Canvas, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("raster: invalid size %dx%d", w, h)
	}
	f, err := boldFont()
	if err != nil {
		return nil, fmt.Errorf("raster: parse bold font: %w", err)
	}
	return &Canvas{
		img:   image.NewRGBA(image.Rect(0, 0, w, h)),
		font:  f,
		faces: make(map[float64]font.Face),
	}, nil
}

func (c *Canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

func (c *Canvas) Clear(col color.Color) {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

// DrawCover fills the canvas with img scaled uniformly by max(w/sw, h/sh) and
// center-cropped.
func (c *Canvas) DrawCover(img image.Image) {
	w, h := c.Size()
	src := CoverCrop(img.Bounds(), w, h)
	if src.Empty() {
		return
	}
	draw.CatmullRom.Scale(c.img, c.img.Bounds(), img, src, draw.Src, nil)
}

// CoverCrop returns the region of src that is visible when src is cover-scaled
// onto a w×h frame.
func CoverCrop(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw <= 0 || sh <= 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	scale := math.Max(float64(w)/sw, float64(h)/sh)
	cw, ch := float64(w)/scale, float64(h)/scale
	x0 := float64(src.Min.X) + (sw-cw)/2
	y0 := float64(src.Min.Y) + (sh-ch)/2
	r := image.Rect(
		int(math.Round(x0)),
		int(math.Round(y0)),
		int(math.Round(x0+cw)),
		int(math.Round(y0+ch)),
	)
	return r.Intersect(src)
}

// FillRect composites col over r.
func (c *Canvas) FillRect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), image.NewUniform(col), image.Point{}, draw.Over)
}

func (c *Canvas) MeasureText(text string, px float64) float64 {
	face, err := c.face(px)
	if err != nil {
		return 0
	}
	return fixedToFloat(font.MeasureString(face, text))
}

func (c *Canvas) DrawText(text string, cx, y int, px float64, col color.Color) {
	face, err := c.face(px)
	if err != nil {
		return
	}
	adv := font.MeasureString(face, text)
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(cx) - adv/2, Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func (c *Canvas) Frame() *image.RGBA { return c.img }

// face returns a cached face at px pixels, rounded to half a pixel.
func (c *Canvas) face(px float64) (font.Face, error) {
	key := math.Round(px*2) / 2
	if key <= 0 {
		key = 0.5
	}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    key,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	c.faces[key] = f
	return f, nil
}

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package render

import (
	"image"
	"image/color"
	"math"

	"github.com/ManuGH/adreel/internal/timeline"
)

// referenceHeight is the canvas height the banner metrics are specified for.
const referenceHeight = 1080

var (
	bannerFill = color.NRGBA{A: 179}
	bannerText = color.White
)

// banner is a centered text box. Offsets are in reference pixels.
type banner struct {
	size       float64
	padX       float64
	height     float64
	top        float64
	baseline   float64
	fromBottom bool
}

var (
	captionBanner = banner{size: 48, padX: 20, height: 70, top: 150, baseline: 100, fromBottom: true}
	titleBanner   = banner{size: 64, padX: 30, height: 90, top: 80, baseline: 150}
)

// minTextSize bounds how far a banner shrinks to fit the frame width.
const minTextSize = 16

// composer draws one frame of a timeline.
type composer struct {
	tl          *timeline.Timeline
	images      map[string]image.Image
	titleWindow float64
}

// draw composes the frame at t and returns the resolved segment index, or -1 for
// the no-content state.
func (c *composer) draw(cv Canvas, t float64) int {
	cv.Clear(color.Black)
	idx, ok := c.tl.ResolveIndex(t)
	if !ok {
		return -1
	}
	seg := c.tl.Segments[idx]
	if img := c.images[seg.ImageRef]; img != nil {
		cv.DrawCover(img)
	}
	if seg.Caption != "" {
		drawBanner(cv, captionBanner, seg.Caption)
	}
	if c.tl.Title != "" && c.tl.LoopedTime(t) < c.titleWindow {
		drawBanner(cv, titleBanner, c.tl.Title)
	}
	return idx
}

func drawBanner(cv Canvas, b banner, text string) {
	w, h := cv.Size()
	s := float64(h) / referenceHeight
	size := b.size * s
	pad := b.padX * s
	tw := cv.MeasureText(text, size)
	for tw+2*pad > float64(w) && size > minTextSize*s {
		size = math.Max(size*0.9, minTextSize*s)
		tw = cv.MeasureText(text, size)
	}

	top, baseline := b.top*s, b.baseline*s
	if b.fromBottom {
		top = float64(h) - top
		baseline = float64(h) - baseline
	}
	x0 := float64(w)/2 - tw/2 - pad
	rect := image.Rect(
		int(math.Round(x0)),
		int(math.Round(top)),
		int(math.Round(x0+tw+2*pad)),
		int(math.Round(top+b.height*s)),
	)
	cv.FillRect(rect, bannerFill)
	cv.DrawText(text, w/2, int(math.Round(baseline)), size, bannerText)
}

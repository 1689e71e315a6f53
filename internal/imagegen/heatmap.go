package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	heatmapMarginLeft = 90
	heatmapMarginTop  = 30
	heatmapStripWidth = 80
	heatmapBarGap     = 30
	heatmapBarWidth   = 20
	heatmapLabelWidth = 90
	minRowHeight      = 1
	maxRowHeight      = 12
	targetPlotHeight  = 600
)

// HeatmapOptions controls labelling of a deviation heatmap.
type HeatmapOptions struct {
	Title string // e.g. "temperature_min corrected - observed"
	Units string
}

var (
	coldColor    = color.RGBA{59, 76, 192, 255}
	neutralColor = color.RGBA{221, 221, 221, 255}
	warmColor    = color.RGBA{180, 4, 38, 255}
	textColor    = color.RGBA{30, 30, 30, 255}
)

// RenderHeatmap draws one row per date coloured by its deviation on a
// diverging scale symmetric around zero, with a colour bar. It returns PNG
// bytes.
func RenderHeatmap(dates []time.Time, deviations []float64, opts HeatmapOptions) ([]byte, error) {
	if len(deviations) == 0 {
		return nil, errors.New("no deviations to render")
	}
	if len(dates) != len(deviations) {
		return nil, fmt.Errorf("dates (%d) and deviations (%d) differ in length", len(dates), len(deviations))
	}

	limit := 0.0
	for _, d := range deviations {
		if a := math.Abs(d); a > limit {
			limit = a
		}
	}

	rowH := targetPlotHeight / len(deviations)
	rowH = max(minRowHeight, min(maxRowHeight, rowH))
	plotH := rowH * len(deviations)

	width := heatmapMarginLeft + heatmapStripWidth + heatmapBarGap + heatmapBarWidth + heatmapLabelWidth
	height := heatmapMarginTop + plotH + 20
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, img.Bounds(), color.RGBA{255, 255, 255, 255})

	for i, d := range deviations {
		y0 := heatmapMarginTop + i*rowH
		r := image.Rect(heatmapMarginLeft, y0, heatmapMarginLeft+heatmapStripWidth, y0+rowH)
		fill(img, r, DivergingColor(d, limit))
	}

	// colour bar, +limit at the top
	barX := heatmapMarginLeft + heatmapStripWidth + heatmapBarGap
	for y := 0; y < plotH; y++ {
		v := limit - 2*limit*float64(y)/float64(max(plotH-1, 1))
		fill(img, image.Rect(barX, heatmapMarginTop+y, barX+heatmapBarWidth, heatmapMarginTop+y+1), DivergingColor(v, limit))
	}

	face := basicfont.Face7x13
	if opts.Title != "" {
		drawText(img, opts.Title, 10, 18, textColor, face)
	}
	labelX := barX + heatmapBarWidth + 6
	drawText(img, formatValue(limit, opts.Units), labelX, heatmapMarginTop+10, textColor, face)
	drawText(img, formatValue(0, opts.Units), labelX, heatmapMarginTop+plotH/2+5, textColor, face)
	drawText(img, formatValue(-limit, opts.Units), labelX, heatmapMarginTop+plotH, textColor, face)

	drawText(img, dates[0].Format("2006-01-02"), 8, heatmapMarginTop+10, textColor, face)
	if len(dates) > 1 {
		drawText(img, dates[len(dates)-1].Format("2006-01-02"), 8, heatmapMarginTop+plotH, textColor, face)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode heatmap: %w", err)
	}
	return buf.Bytes(), nil
}

// DivergingColor maps v in [-limit, limit] from blue through grey to red.
// A zero limit maps everything to the neutral colour.
func DivergingColor(v, limit float64) color.RGBA {
	if limit <= 0 || v == 0 {
		return neutralColor
	}
	t := math.Max(-1, math.Min(1, v/limit))
	if t < 0 {
		return lerp(neutralColor, coldColor, -t)
	}
	return lerp(neutralColor, warmColor, t)
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

func formatValue(v float64, units string) string {
	s := fmt.Sprintf("%+.2f", v)
	if v == 0 {
		s = "0"
	}
	if units != "" {
		s += " " + units
	}
	return s
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawText draws text at the given baseline position using the specified font face.
func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

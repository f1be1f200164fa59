// Package geometry maps CTA placement constants authored against the baseline export
// resolution into the live document's export resolution and on-screen canvas units.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

const (
	// BaselineExportWidth is the export width CTA layouts are authored against.
	BaselineExportWidth = 1080.0
	// BaselineExportHeight is the export height CTA layouts are authored against.
	BaselineExportHeight = 1920.0
	// PageWidth is the logical canvas page width.
	PageWidth = 360.0
	// PageHeight is the logical canvas page height.
	PageHeight = 640.0
)

// ErrUndefinedScale indicates the document has no usable export size or scale.
var ErrUndefinedScale = errors.New("geometry: undefined scale")

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is an x/y pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a positioned size. A point is a Rect with zero size.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Space exposes the document properties the mapper reads.
type Space interface {
	ExportSize() Size
	ExportScale() float64
}

// ExportRatios returns the x and y ratios between the export size and the baseline.
func ExportRatios(space Space) (float64, float64, error) {
	if space == nil {
		return 0, 0, fmt.Errorf("%w: missing document", ErrUndefinedScale)
	}
	exportSize := space.ExportSize()
	if !usable(exportSize.Width) || !usable(exportSize.Height) {
		return 0, 0, fmt.Errorf("%w: export size %.2fx%.2f", ErrUndefinedScale, exportSize.Width, exportSize.Height)
	}
	return exportSize.Width / BaselineExportWidth, exportSize.Height / BaselineExportHeight, nil
}

// MapBaselineToExport scales a baseline rectangle into the document's export resolution.
func MapBaselineToExport(space Space, rect Rect) (Rect, error) {
	ratioX, ratioY, err := ExportRatios(space)
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		X:      rect.X * ratioX,
		Y:      rect.Y * ratioY,
		Width:  rect.Width * ratioX,
		Height: rect.Height * ratioY,
	}, nil
}

// ToCanvasRect converts an export-space rectangle into canvas units.
func ToCanvasRect(space Space, rect Rect) (Rect, error) {
	if space == nil {
		return Rect{}, fmt.Errorf("%w: missing document", ErrUndefinedScale)
	}
	scale := space.ExportScale()
	if !usable(scale) {
		return Rect{}, fmt.Errorf("%w: export scale %.2f", ErrUndefinedScale, scale)
	}
	return Rect{
		X:      rect.X / scale,
		Y:      rect.Y / scale,
		Width:  rect.Width / scale,
		Height: rect.Height / scale,
	}, nil
}

// CanvasRectFromBaseline maps baseline dimensions and position into canvas units.
func CanvasRectFromBaseline(space Space, size Size, position Point) (Rect, error) {
	exportRect, err := MapBaselineToExport(space, Rect{X: position.X, Y: position.Y, Width: size.Width, Height: size.Height})
	if err != nil {
		return Rect{}, err
	}
	return ToCanvasRect(space, exportRect)
}

// CanvasRectOrIdentity maps like CanvasRectFromBaseline and falls back to the page-baseline
// projection (baseline divided by BaselineExportWidth/PageWidth) when the space is degenerate.
func CanvasRectOrIdentity(space Space, size Size, position Point) (Rect, error) {
	rect, err := CanvasRectFromBaseline(space, size, position)
	if err == nil {
		return rect, nil
	}
	fallback := baselineSpace{}
	rect, _ = CanvasRectFromBaseline(fallback, size, position)
	return rect, err
}

type baselineSpace struct{}

func (baselineSpace) ExportSize() Size {
	return Size{Width: BaselineExportWidth, Height: BaselineExportHeight}
}

func (baselineSpace) ExportScale() float64 {
	return BaselineExportWidth / PageWidth
}

func usable(value float64) bool {
	return value > 0 && !math.IsInf(value, 0) && !math.IsNaN(value)
}

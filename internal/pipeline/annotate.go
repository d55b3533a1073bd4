package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	"STORM_VISION/internal/models"
)

const boxThickness = 2

var boxColor = color.RGBA{R: 255, G: 64, B: 64, A: 255}

// Annotate рисует рамки детекций поверх изображения и возвращает PNG.
func Annotate(img []byte, detections []models.Detection) ([]byte, error) {
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode restored image: %w", err)
	}

	bounds := decoded.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, decoded, bounds.Min, draw.Src)

	for _, det := range detections {
		drawBox(canvas, det.BBox)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBox(canvas *image.RGBA, box models.BBox) {
	rect := image.Rect(box.X1, box.Y1, box.X2, box.Y2).Intersect(canvas.Bounds())
	if rect.Empty() {
		return
	}

	for t := 0; t < boxThickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setPixel(canvas, x, rect.Min.Y+t)
			setPixel(canvas, x, rect.Max.Y-1-t)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setPixel(canvas, rect.Min.X+t, y)
			setPixel(canvas, rect.Max.X-1-t, y)
		}
	}
}

func setPixel(canvas *image.RGBA, x, y int) {
	if image.Pt(x, y).In(canvas.Bounds()) {
		canvas.Set(x, y, boxColor)
	}
}

package game

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

const placeholderSize = 512

// placeholderPNG renders the solid tile stored for failed attempts. Its tint
// shifts with the round so failures from different rounds are distinguishable.
func placeholderPNG(round int) []byte {
	c := color.RGBA{
		R: clampByte(100 + round*30),
		G: 150,
		B: clampByte(200 - round*20),
		A: 255,
	}
	img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	// encoding an in-memory RGBA cannot fail
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

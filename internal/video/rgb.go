package video

import "image"

// FrameFromRGB24 converts one packed RGB24 frame into a new RGBA image.
// buf must hold at least width*height*3 bytes.
func FrameFromRGB24(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	n := width * height
	for i, j := 0, 0; i < n; i, j = i+1, j+3 {
		o := i * 4
		img.Pix[o] = buf[j]
		img.Pix[o+1] = buf[j+1]
		img.Pix[o+2] = buf[j+2]
		img.Pix[o+3] = 0xff
	}
	return img
}

// FrameBytes is the size of one RGB24 frame.
func FrameBytes(size image.Point) int {
	return size.X * size.Y * 3
}

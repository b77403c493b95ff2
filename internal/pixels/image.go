package pixels

import (
	"fmt"
	"image"

	"github.com/meigma/ifcb/internal/bintype"
)

// Image wraps target pixels as a grayscale image. One byte per pixel
// yields *image.Gray; two bytes per pixel yields big-endian *image.Gray16.
// The pixel slice is used in place, not copied.
func Image(p []byte, width, height int64, bytesPerPixel int) (image.Image, error) {
	if width < 0 || height < 0 || int64(len(p)) != width*height*int64(bytesPerPixel) {
		fe := bintype.NewFormatError(bintype.ArtifactBlob, bintype.ErrSizeOverflow)
		fe.Expected = fmt.Sprintf("%dx%dx%d bytes", width, height, bytesPerPixel)
		fe.Actual = fmt.Sprintf("%d bytes", len(p))
		return nil, fe
	}
	rect := image.Rect(0, 0, int(width), int(height))
	switch bytesPerPixel {
	case 1:
		return &image.Gray{Pix: p, Stride: int(width), Rect: rect}, nil
	case 2:
		return &image.Gray16{Pix: p, Stride: int(width) * 2, Rect: rect}, nil
	default:
		return nil, fmt.Errorf("pixels: unsupported bytes per pixel %d", bytesPerPixel)
	}
}

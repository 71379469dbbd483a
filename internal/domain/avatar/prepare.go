// Package avatar turns a picked image into a hosted profile photo and pushes the new
// URL to every profile consumer.
package avatar

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"mindtracking-client/internal/platform/errors"
)

const jpegQuality = 85

// Prepare decodes a jpeg, png, gif or webp image, fits it inside maxDim x maxDim and
// re-encodes it as jpeg. maxDim <= 0 keeps the original size.
func Prepare(r io.Reader, maxDim int) ([]byte, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(errors.KindUpload, "avatar.prepare", "decode image", err)
	}

	img := src
	if w, h := scaledSize(src.Bounds(), maxDim); w != src.Bounds().Dx() || h != src.Bounds().Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(errors.KindUpload, "avatar.prepare", "encode "+format+" as jpeg", err)
	}
	return buf.Bytes(), nil
}

func scaledSize(b image.Rectangle, maxDim int) (int, int) {
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

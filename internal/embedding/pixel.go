package embedding

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
)

// PixelProvider embeds an image as its downsampled grayscale pixels.
// It is the untrained baseline that learned embeddings are compared against.
type PixelProvider struct {
	size int
}

// NewPixelProvider creates a provider producing size*size dimensional vectors.
func NewPixelProvider(size int) *PixelProvider {
	if size <= 0 {
		size = 32
	}
	return &PixelProvider{size: size}
}

// Embed decodes the image at in.Path and returns its pixel vector.
func (p *PixelProvider) Embed(ctx context.Context, in Input) (Embedding, error) {
	if err := ctx.Err(); err != nil {
		return Embedding{}, err
	}

	f, err := os.Open(in.Path)
	if err != nil {
		return Embedding{}, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Embedding{}, fmt.Errorf("decoding %s: %w", in.Path, err)
	}

	return Embedding{Vector: Pixels(img, p.size)}, nil
}

// ModelName returns the name of the embedding model.
func (p *PixelProvider) ModelName() string {
	return fmt.Sprintf("pixels-%d", p.size)
}

// Dimensions returns the expected vector dimensions.
func (p *PixelProvider) Dimensions() int {
	return p.size * p.size
}

// Pixels center-crops img to a square, box-averages it down (or
// nearest-samples it up) to size x size luminance values in [0, 1], and
// returns them row-major.
func Pixels(img image.Image, size int) []float32 {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	out := make([]float32, size*size)
	if side == 0 {
		return out
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2

	for oy := 0; oy < size; oy++ {
		sy0 := y0 + oy*side/size
		sy1 := y0 + (oy+1)*side/size
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for ox := 0; ox < size; ox++ {
			sx0 := x0 + ox*side/size
			sx1 := x0 + (ox+1)*side/size
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}

			var sum float64
			for y := sy0; y < sy1; y++ {
				for x := sx0; x < sx1; x++ {
					sum += luminance(img.At(x, y).RGBA())
				}
			}
			out[oy*size+ox] = float32(sum / float64((sy1-sy0)*(sx1-sx0)))
		}
	}
	return out
}

// luminance converts 16-bit RGBA to ITU-R BT.601 luma in [0, 1].
func luminance(r, g, b, _ uint32) float64 {
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 0xffff
}

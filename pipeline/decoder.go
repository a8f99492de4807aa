package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/metrics"
)

// DecodedImage is the output of one decode pass, after resize and
// rotation have been applied.
type DecodedImage struct {
	Image  image.Image
	Format string
}

// Decoder turns encoded payloads into bitmaps, applying the request's
// resize and rotation options.
type Decoder struct {
	log *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{log: logger}
}

func (d *Decoder) Decode(ctx context.Context, req *request.ImageRequest, payload []byte) (*DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if rot := req.RotationOptions(); rot != nil {
		img, err = applyRotation(img, rot)
		if err != nil {
			return nil, err
		}
	}
	if rs := req.ResizeOptions(); rs != nil {
		img = imaging.Fit(img, rs.Width, rs.Height, imaging.Lanczos)
	}

	metrics.DecodeDuration.Observe(time.Since(start).Seconds())
	d.log.Debug("decoded image",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.Duration("took", time.Since(start)))

	return &DecodedImage{Image: img, Format: format}, nil
}

func applyRotation(img image.Image, rot *request.RotationOptions) (image.Image, error) {
	if !rot.RotationEnabled() || rot.DeferUntilRendered() {
		return img, nil
	}
	if rot.UseImageMetadata() {
		// orientation metadata is stripped by image.Decode; nothing to
		// apply here
		return img, nil
	}
	// imaging rotates counter-clockwise; forced angles are clockwise
	switch rot.ForcedAngle() {
	case 0:
		return img, nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	}
	return nil, fmt.Errorf("unsupported rotation angle %d", rot.ForcedAngle())
}

package request

import (
	"fmt"
	"time"
)

// ResizeOptions describes the target dimensions for downscaling during
// decode. A nil *ResizeOptions means no resize is performed.
type ResizeOptions struct {
	Width  int
	Height int
}

func NewResizeOptions(width, height int) *ResizeOptions {
	return &ResizeOptions{Width: width, Height: height}
}

func (o *ResizeOptions) String() string {
	return fmt.Sprintf("%dx%d", o.Width, o.Height)
}

const (
	rotationUseMetadata = -1
	rotationDisabled    = -2
)

// RotationOptions describes whether and how the decoded image is rotated:
// by the orientation recorded in the image metadata, by a forced multiple
// of 90 degrees, or not at all.
type RotationOptions struct {
	rotation           int
	deferUntilRendered bool
}

// AutoRotate rotates the image according to its embedded orientation.
func AutoRotate() *RotationOptions {
	return &RotationOptions{rotation: rotationUseMetadata}
}

// DisableRotation leaves the image exactly as decoded.
func DisableRotation() *RotationOptions {
	return &RotationOptions{rotation: rotationDisabled}
}

// ForceRotation rotates by a fixed clockwise angle. The angle must be a
// multiple of 90 in [0, 270]; other values fall back to no rotation.
func ForceRotation(angle int) *RotationOptions {
	if angle%90 != 0 || angle < 0 || angle > 270 {
		return DisableRotation()
	}
	return &RotationOptions{rotation: angle}
}

// UseImageMetadata reports whether the rotation comes from image metadata.
func (o *RotationOptions) UseImageMetadata() bool {
	return o.rotation == rotationUseMetadata
}

// RotationEnabled reports whether any rotation may be applied.
func (o *RotationOptions) RotationEnabled() bool {
	return o.rotation != rotationDisabled
}

// ForcedAngle returns the forced clockwise angle. Only meaningful when
// UseImageMetadata is false and RotationEnabled is true.
func (o *RotationOptions) ForcedAngle() int {
	if o.rotation < 0 {
		return 0
	}
	return o.rotation
}

func (o *RotationOptions) DeferUntilRendered() bool {
	return o.deferUntilRendered
}

func (o *RotationOptions) String() string {
	switch o.rotation {
	case rotationUseMetadata:
		return "auto"
	case rotationDisabled:
		return "off"
	}
	return fmt.Sprintf("%d", o.rotation)
}

// ImageDecodeOptions tunes the decoder. The zero value is not meaningful;
// use DefaultDecodeOptions as the base.
type ImageDecodeOptions struct {
	// MinDecodeInterval throttles successive progressive decodes of the
	// same image.
	MinDecodeInterval time.Duration
	// ForceStaticImage decodes only the first frame of animated formats.
	ForceStaticImage bool
	// DecodePreviewFrame decodes a preview frame for animated images.
	DecodePreviewFrame bool
	// UseLastFrameForPreview selects the last frame instead of the first
	// when DecodePreviewFrame is set.
	UseLastFrameForPreview bool
	// DecodeAllFrames decodes every frame of an animated image up front.
	DecodeAllFrames bool
}

var defaultDecodeOptions = &ImageDecodeOptions{
	MinDecodeInterval: 100 * time.Millisecond,
}

// DefaultDecodeOptions returns the shared pipeline-wide decode options.
// Callers must not mutate the returned value.
func DefaultDecodeOptions() *ImageDecodeOptions {
	return defaultDecodeOptions
}

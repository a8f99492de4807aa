package pipeline

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/go-viper/mapstructure/v2"

	"github.com/omalloc/imago/api/defined/v1/request"
)

// PostprocessorFactory builds a configured postprocessor from its raw
// option map.
type PostprocessorFactory func(options map[string]any) (request.Postprocessor, error)

var (
	ppMu       sync.RWMutex
	ppRegistry = map[string]PostprocessorFactory{}
)

// RegisterPostprocessor makes a factory available under name. Later
// registrations with the same name win.
func RegisterPostprocessor(name string, factory PostprocessorFactory) {
	ppMu.Lock()
	defer ppMu.Unlock()
	ppRegistry[name] = factory
}

// CreatePostprocessor instantiates a registered postprocessor.
func CreatePostprocessor(name string, options map[string]any) (request.Postprocessor, error) {
	ppMu.RLock()
	factory, ok := ppRegistry[name]
	ppMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown postprocessor %q", name)
	}
	return factory(options)
}

// Postprocessors lists the registered names, sorted.
func Postprocessors() []string {
	ppMu.RLock()
	defer ppMu.RUnlock()
	names := make([]string, 0, len(ppRegistry))
	for name := range ppRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterPostprocessor("grayscale", func(map[string]any) (request.Postprocessor, error) {
		return grayscalePostprocessor{}, nil
	})
	RegisterPostprocessor("blur", newBlurPostprocessor)
	RegisterPostprocessor("sharpen", func(map[string]any) (request.Postprocessor, error) {
		return sharpenPostprocessor{}, nil
	})
}

type grayscalePostprocessor struct{}

func (grayscalePostprocessor) Name() string     { return "grayscale" }
func (grayscalePostprocessor) CacheKey() string { return "grayscale" }

func (grayscalePostprocessor) Process(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return effect.Grayscale(img), nil
}

type blurPostprocessor struct {
	Radius float64 `mapstructure:"radius"`
}

func newBlurPostprocessor(options map[string]any) (request.Postprocessor, error) {
	p := blurPostprocessor{Radius: 3.0}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(options); err != nil {
		return nil, fmt.Errorf("blur options: %w", err)
	}
	if p.Radius <= 0 {
		return nil, fmt.Errorf("blur radius must be positive, got %v", p.Radius)
	}
	return p, nil
}

func (p blurPostprocessor) Name() string     { return "blur" }
func (p blurPostprocessor) CacheKey() string { return fmt.Sprintf("blur:%g", p.Radius) }

func (p blurPostprocessor) Process(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return blur.Gaussian(img, p.Radius), nil
}

type sharpenPostprocessor struct{}

func (sharpenPostprocessor) Name() string     { return "sharpen" }
func (sharpenPostprocessor) CacheKey() string { return "sharpen" }

func (sharpenPostprocessor) Process(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return effect.Sharpen(img), nil
}

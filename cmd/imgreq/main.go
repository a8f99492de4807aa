// imgreq builds an image request from flags and prints how the pipeline
// would address it: validation outcome, derived flags, and cache keys.
// Handy for debugging why two URLs do or don't share a cache entry.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/cache"
)

var (
	flagSrc         string
	flagWidth       int
	flagHeight      int
	flagRotate      int
	flagMediaID     string
	flagProgressive bool
	flagNoDiskCache bool
	flagSmall       bool
)

func init() {
	flag.StringVar(&flagSrc, "src", "", "source URI (http, https, file, res, asset, data)")
	flag.IntVar(&flagWidth, "w", 0, "resize width")
	flag.IntVar(&flagHeight, "h", 0, "resize height")
	flag.IntVar(&flagRotate, "rotate", 0, "forced clockwise rotation angle")
	flag.StringVar(&flagMediaID, "media-id", "", "media variations id")
	flag.BoolVar(&flagProgressive, "progressive", false, "enable progressive rendering")
	flag.BoolVar(&flagNoDiskCache, "no-disk-cache", false, "disable the disk cache")
	flag.BoolVar(&flagSmall, "small", false, "use the small image cache")
}

type report struct {
	Source           string `json:"source"`
	DiskCacheEnabled bool   `json:"disk_cache_enabled"`
	CacheChoice      string `json:"cache_choice"`
	EncodedKey       string `json:"encoded_key"`
	EncodedPath      string `json:"encoded_path"`
	BitmapKey        string `json:"bitmap_key"`
	BitmapRaw        string `json:"bitmap_raw"`
}

func main() {
	flag.Parse()

	if flagSrc == "" {
		flag.Usage()
		os.Exit(2)
	}
	uri, err := url.Parse(flagSrc)
	if err != nil {
		log.Fatalf("bad src: %v", err)
	}

	b := request.NewBuilderWithSource(uri)
	if flagWidth > 0 && flagHeight > 0 {
		b.SetResizeOptions(request.NewResizeOptions(flagWidth, flagHeight))
	}
	if flagRotate != 0 {
		b.SetRotationOptions(request.ForceRotation(flagRotate))
	}
	if flagMediaID != "" {
		b.SetMediaVariationsForMediaID(flagMediaID)
	}
	if flagProgressive {
		b.SetProgressiveRenderingEnabled(true)
	}
	if flagNoDiskCache {
		b.DisableDiskCache()
	}
	if flagSmall {
		b.SetCacheChoice(request.CacheChoiceSmall)
	}

	req, err := b.Build()
	if err != nil {
		log.Fatalf("rejected: %v", err)
	}

	encKey := cache.EncodedKeyForRequest(req)
	bmpKey := cache.BitmapKeyForRequest(req)

	out, err := json.MarshalIndent(report{
		Source:           req.SourceURI().String(),
		DiskCacheEnabled: req.IsDiskCacheEnabled(),
		CacheChoice:      req.CacheChoice().String(),
		EncodedKey:       encKey.HashStr(),
		EncodedPath:      encKey.WPath("."),
		BitmapKey:        bmpKey.HashStr(),
		BitmapRaw:        bmpKey.Raw(),
	}, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(out))
}

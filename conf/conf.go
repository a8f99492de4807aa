package conf

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Bootstrap is the root configuration of the daemon.
type Bootstrap struct {
	Strict  bool      `json:"strict" yaml:"strict"`
	PidFile string    `json:"pidfile" yaml:"pidfile"`
	Server  *Server   `json:"server" yaml:"server"`
	Log     *Log      `json:"log" yaml:"log"`
	Cache   *Cache    `json:"cache" yaml:"cache"`
	Fetch   *Fetch    `json:"fetch" yaml:"fetch"`
	Presets []*Preset `json:"presets" yaml:"presets"`
}

type Server struct {
	Addr              string   `json:"addr" yaml:"addr"`
	ReadTimeout       Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	MaxHeaderBytes    int      `json:"max_header_bytes" yaml:"max_header_bytes"`
}

type Log struct {
	Verbose    bool   `json:"verbose" yaml:"verbose"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
}

type Cache struct {
	// EncodedCapacity and BitmapCapacity size the default memory tiers,
	// in entries.
	EncodedCapacity      int `json:"encoded_capacity" yaml:"encoded_capacity"`
	BitmapCapacity       int `json:"bitmap_capacity" yaml:"bitmap_capacity"`
	SmallEncodedCapacity int `json:"small_encoded_capacity" yaml:"small_encoded_capacity"`
	SmallBitmapCapacity  int `json:"small_bitmap_capacity" yaml:"small_bitmap_capacity"`

	DiskEnabled bool   `json:"disk_enabled" yaml:"disk_enabled"`
	DiskRoot    string `json:"disk_root" yaml:"disk_root"`
	// IndexDB selects the disk index driver, "pebble" or "nutsdb".
	IndexDB string `json:"indexdb" yaml:"indexdb"`
	// MaxPayload rejects fetched payloads larger than this. Accepts
	// humanized sizes like "16 MiB".
	MaxPayload ByteSize `json:"max_payload" yaml:"max_payload"`
}

type Fetch struct {
	RatePerSecond float64  `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int      `json:"burst" yaml:"burst"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
	MaxConcurrent int64    `json:"max_concurrent" yaml:"max_concurrent"`
	AssetRoot     string   `json:"asset_root" yaml:"asset_root"`
	ResourceRoot  string   `json:"resource_root" yaml:"resource_root"`
}

// Preset names a postprocessor configuration that requests can refer to.
type Preset struct {
	Name          string         `json:"name" yaml:"name"`
	Postprocessor string         `json:"postprocessor" yaml:"postprocessor"`
	Options       map[string]any `json:"options" yaml:"options"`
}

func (p *Preset) PresetName() string {
	return p.Name
}

// Unmarshal decodes the preset's option map into v.
func (p *Preset) Unmarshal(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           v,
	})
	if err != nil {
		return err
	}
	return dec.Decode(p.Options)
}

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", node.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ByteSize is a byte count that unmarshals from humanized strings like
// "16 MiB" as well as plain numbers.
type ByteSize uint64

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	v, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("bad byte size %q: %w", node.Value, err)
	}
	*b = ByteSize(v)
	return nil
}

func defaultBootstrap() *Bootstrap {
	return &Bootstrap{
		Server: &Server{
			Addr:              ":8420",
			ReadTimeout:       Duration(30 * time.Second),
			WriteTimeout:      Duration(60 * time.Second),
			IdleTimeout:       Duration(120 * time.Second),
			ReadHeaderTimeout: Duration(10 * time.Second),
			MaxHeaderBytes:    1 << 20,
		},
		Log: &Log{
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		Cache: &Cache{
			EncodedCapacity:      1024,
			BitmapCapacity:       256,
			SmallEncodedCapacity: 4096,
			SmallBitmapCapacity:  1024,
			DiskEnabled:          true,
			DiskRoot:             "data",
			IndexDB:              "pebble",
			MaxPayload:           ByteSize(64 << 20),
		},
		Fetch: &Fetch{
			Burst:         4,
			Timeout:       Duration(30 * time.Second),
			MaxConcurrent: 16,
		},
	}
}

// Load reads path, fills in defaults for everything the file leaves out,
// and returns the merged Bootstrap.
func Load(path string) (*Bootstrap, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	bc := &Bootstrap{}
	if err := yaml.Unmarshal(buf, bc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := mergo.Merge(bc, defaultBootstrap()); err != nil {
		return nil, err
	}
	return bc, nil
}

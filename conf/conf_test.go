package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
cache:
  disk_root: /var/cache/imago
`)
	bc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", bc.Server.Addr)
	assert.Equal(t, 30*time.Second, bc.Server.ReadTimeout.Std())
	assert.Equal(t, "/var/cache/imago", bc.Cache.DiskRoot)
	assert.Equal(t, "pebble", bc.Cache.IndexDB)
	assert.Equal(t, 1024, bc.Cache.EncodedCapacity)
	assert.True(t, bc.Cache.DiskEnabled)
	assert.Equal(t, int64(16), bc.Fetch.MaxConcurrent)
}

func TestLoadHumanizedSizesAndDurations(t *testing.T) {
	path := writeConfig(t, `
server:
  read_timeout: 5s
cache:
  max_payload: 16 MiB
fetch:
  timeout: 90s
`)
	bc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, bc.Server.ReadTimeout.Std())
	assert.Equal(t, ByteSize(16<<20), bc.Cache.MaxPayload)
	assert.Equal(t, 90*time.Second, bc.Fetch.Timeout.Std())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "server:\n  read_timeout: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestPresetUnmarshal(t *testing.T) {
	path := writeConfig(t, `
presets:
  - name: thumb-blur
    postprocessor: blur
    options:
      radius: 4
`)
	bc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, bc.Presets, 1)

	var opts struct {
		Radius float64 `mapstructure:"radius"`
	}
	require.NoError(t, bc.Presets[0].Unmarshal(&opts))
	assert.Equal(t, "thumb-blur", bc.Presets[0].PresetName())
	assert.Equal(t, 4.0, opts.Radius)
}

func TestWatchReload(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":1111\"\n")

	reloaded := make(chan *Bootstrap, 1)
	w, err := Watch(path, nil, func(bc *Bootstrap) {
		select {
		case reloaded <- bc:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":2222\"\n"), 0o644))

	select {
	case bc := <-reloaded:
		assert.Equal(t, ":2222", bc.Server.Addr)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload not observed")
	}
}

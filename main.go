package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/cache/disk"
	_ "github.com/omalloc/imago/cache/indexdb/nutsdb"
	_ "github.com/omalloc/imago/cache/indexdb/pebble"
	"github.com/omalloc/imago/cache/memory"
	"github.com/omalloc/imago/conf"
	"github.com/omalloc/imago/internal/log"
	"github.com/omalloc/imago/pipeline"
	"github.com/omalloc/imago/pkg/encoding"
	"github.com/omalloc/imago/pkg/encoding/json"
	"github.com/omalloc/imago/server"
)

var (
	// flagConf is the config flag.
	flagConf string = "config.yaml"
	// flagVerbose is the verbose flag.
	flagVerbose bool

	// Version is the version of the app.
	Version string = "no-set"
	GitHash string = "no-set"
	Built   string = "0"
)

func init() {
	// init flag
	flag.StringVar(&flagConf, "c", "config.yaml", "config file path")
	flag.BoolVar(&flagVerbose, "v", false, "enable verbose log")

	// init global encoding
	encoding.SetDefaultCodec(json.JSONCodec{})

	// init prometheus
	prometheus.Unregister(collectors.NewGoCollector())
	registerer := prometheus.WrapRegistererWithPrefix("imago_", prometheus.DefaultRegisterer)
	registerer.MustRegister(collectors.NewGoCollector(collectors.WithGoCollectorMemStatsMetricsDisabled()))
}

func main() {
	flag.Parse()

	bc, err := conf.Load(flagConf)
	if err != nil {
		log.S().Fatalf("load config %s: %v", flagConf, err)
	}

	logger := log.New(log.Options{
		Verbose:    flagVerbose || bc.Log.Verbose,
		Path:       bc.Log.Path,
		MaxSizeMB:  bc.Log.MaxSizeMB,
		MaxBackups: bc.Log.MaxBackups,
	})
	log.Replace(logger)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		zap.String("version", Version),
		zap.String("git", GitHash),
		zap.String("built", Built))

	if err := run(bc, logger); err != nil {
		logger.Fatal("exited", zap.Error(err))
	}
}

func run(bc *conf.Bootstrap, logger *zap.Logger) error {
	stopTimeout := 120 * time.Second

	// graceful upgrade
	flip, err := tableflip.New(tableflip.Options{
		PIDFile:        bc.PidFile,
		UpgradeTimeout: stopTimeout,
	})
	if err != nil {
		return err
	}
	defer flip.Stop()

	// graceful upgrade if we have no parent process,
	// remove unix socket file.
	if !flip.HasParent() {
		if strings.HasSuffix(bc.Server.Addr, ".sock") {
			_ = os.Remove(bc.Server.Addr)
		}
	}

	pipe, err := newPipeline(bc, logger)
	if err != nil {
		return err
	}
	defer pipe.Close()

	srv, err := server.New(bc.Server, pipe, bc.Presets, flip, logger)
	if err != nil {
		return err
	}

	// a config change triggers a self-upgrade so the new process picks
	// it up without dropping connections
	watcher, err := conf.Watch(flagConf, logger, func(*conf.Bootstrap) {
		if err := flip.Upgrade(); err != nil {
			logger.Warn("upgrade after config change failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(context.Background())
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigc {
			if sig == syscall.SIGHUP {
				if err := flip.Upgrade(); err != nil {
					logger.Warn("upgrade failed", zap.Error(err))
				}
				continue
			}
			logger.Info("shutting down", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			_ = srv.Stop(ctx)
			cancel()
			return
		}
	}()

	if err := flip.Ready(); err != nil {
		return err
	}

	select {
	case err := <-errc:
		return err
	case <-flip.Exit():
		// the child took over; drain in-flight requests
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return srv.Stop(ctx)
	}
}

func newPipeline(bc *conf.Bootstrap, logger *zap.Logger) (*pipeline.Pipeline, error) {
	caches, err := memory.NewCaches(memory.CachesConfig{
		DefaultEncodedEntries: bc.Cache.EncodedCapacity,
		SmallEncodedEntries:   bc.Cache.SmallEncodedCapacity,
		DefaultBitmapEntries:  bc.Cache.BitmapCapacity,
		SmallBitmapEntries:    bc.Cache.SmallBitmapCapacity,
	})
	if err != nil {
		return nil, err
	}

	var d *disk.Cache
	if bc.Cache.DiskEnabled {
		if d, err = disk.New(disk.Options{
			Root:   bc.Cache.DiskRoot,
			DBType: bc.Cache.IndexDB,
			Logger: logger,
		}); err != nil {
			return nil, err
		}
	}

	fetcher := pipeline.NewFetcher(pipeline.FetcherOptions{
		Client:        newHTTPClient(bc.Fetch.Timeout.Std()),
		RatePerSecond: bc.Fetch.RatePerSecond,
		Burst:         bc.Fetch.Burst,
		AssetRoot:     bc.Fetch.AssetRoot,
		ResourceRoot:  bc.Fetch.ResourceRoot,
		MaxPayload:    uint64(bc.Cache.MaxPayload),
		Logger:        logger,
	})

	return pipeline.New(pipeline.Options{
		Caches:        caches,
		Disk:          d,
		Fetcher:       fetcher,
		Decoder:       pipeline.NewDecoder(logger),
		Listeners:     []request.RequestListener{newLogListener(logger)},
		MaxConcurrent: bc.Fetch.MaxConcurrent,
		Logger:        logger,
	})
}

package server

import (
	"context"
	"net"
	"net/http"

	"github.com/cloudflare/tableflip"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/omalloc/imago/api/defined/v1/request"
	"github.com/omalloc/imago/conf"
	"github.com/omalloc/imago/pipeline"
)

// HTTPServer serves the image endpoint plus the operational surface
// (metrics, health, process stats).
type HTTPServer struct {
	*http.Server

	pipe    *pipeline.Pipeline
	presets map[string]request.Postprocessor

	flip     *tableflip.Upgrader
	listener net.Listener
	log      *zap.Logger
}

func New(bc *conf.Server, pipe *pipeline.Pipeline, presets []*conf.Preset, flip *tableflip.Upgrader, logger *zap.Logger) (*HTTPServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HTTPServer{
		Server: &http.Server{
			Addr:              bc.Addr,
			ReadTimeout:       bc.ReadTimeout.Std(),
			WriteTimeout:      bc.WriteTimeout.Std(),
			IdleTimeout:       bc.IdleTimeout.Std(),
			ReadHeaderTimeout: bc.ReadHeaderTimeout.Std(),
			MaxHeaderBytes:    bc.MaxHeaderBytes,
		},
		pipe: pipe,
		flip: flip,
		log:  logger,
	}

	loaded, err := loadPresets(presets)
	if err != nil {
		return nil, err
	}
	s.presets = loaded
	s.Handler = s.newServeMux()
	return s, nil
}

func loadPresets(presets []*conf.Preset) (map[string]request.Postprocessor, error) {
	byName := lo.KeyBy(presets, (*conf.Preset).PresetName)
	out := make(map[string]request.Postprocessor, len(byName))
	for name, p := range byName {
		pp, err := pipeline.CreatePostprocessor(p.Postprocessor, p.Options)
		if err != nil {
			return nil, err
		}
		out[name] = pp
	}
	return out, nil
}

func (s *HTTPServer) newServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /img", s.handleImage)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /debug/statsz", s.handleStatsz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *HTTPServer) Start(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}
	s.log.Info("http server listening", zap.String("addr", s.Server.Addr))

	err := s.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.Shutdown(ctx)
}

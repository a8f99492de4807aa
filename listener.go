package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omalloc/imago/api/defined/v1/request"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// logListener mirrors the request lifecycle into the process log.
type logListener struct {
	log *zap.Logger
}

func newLogListener(logger *zap.Logger) *logListener {
	return &logListener{log: logger}
}

func (l *logListener) OnRequestStart(requestID string, req *request.ImageRequest) {
	l.log.Debug("request started",
		zap.String("request_id", requestID),
		zap.Stringer("src", req.SourceURI()),
		zap.Stringer("priority", req.Priority()))
}

func (l *logListener) OnRequestSuccess(requestID string, req *request.ImageRequest) {
	l.log.Debug("request succeeded",
		zap.String("request_id", requestID),
		zap.Stringer("src", req.SourceURI()))
}

func (l *logListener) OnRequestFailure(requestID string, req *request.ImageRequest, err error) {
	l.log.Warn("request failed",
		zap.String("request_id", requestID),
		zap.Stringer("src", req.SourceURI()),
		zap.Error(err))
}

func (l *logListener) OnRequestCancellation(requestID string, req *request.ImageRequest) {
	l.log.Debug("request cancelled",
		zap.String("request_id", requestID),
		zap.Stringer("src", req.SourceURI()))
}

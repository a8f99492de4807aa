package metrics

import (
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// RequestsTotal counts finished requests by the level that produced
	// the result and the outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requests_total",
		Help: "Finished image requests by producing level and outcome.",
	}, []string{"level", "outcome"})

	// CacheHitsTotal counts memory/disk cache hits by tier and choice.
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits by tier and cache choice.",
	}, []string{"tier", "choice"})

	// FetchBytes observes how many bytes each network fetch produced.
	FetchBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetch_bytes",
		Help:    "Bytes fetched from the network per request.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	// DecodeDuration observes decode+transform latency.
	DecodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decode_duration_seconds",
		Help:    "Time spent decoding and transforming one image.",
		Buckets: prometheus.DefBuckets,
	})

	fetchCounter = ratecounter.NewRateCounter(time.Minute)

	// FetchRate exposes the ratecounter as a gauge so it lands in the
	// same scrape as everything else.
	FetchRate = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fetch_rate_per_minute",
		Help: "Network fetches over the trailing minute.",
	}, func() float64 {
		return float64(fetchCounter.Rate())
	})
)

// MarkFetch records one network fetch in the trailing-rate counter.
func MarkFetch() {
	fetchCounter.Incr(1)
}

// Gather returns the current metric families of the default gatherer.
func Gather() []*dto.MetricFamily {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil
	}
	return families
}

// LevelOutcome captures per-(level,outcome) counts for the stats surface.
type LevelOutcome struct {
	Level   string  `json:"level"`
	Outcome string  `json:"outcome"`
	Count   float64 `json:"count"`
}

// CollectRequestsTotal reads the requests_total counter back out of the
// gatherer for the human-facing stats endpoint.
func CollectRequestsTotal() []*LevelOutcome {
	totals := make([]*LevelOutcome, 0)
	for _, mf := range Gather() {
		if mf.GetName() != "requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			lo := &LevelOutcome{Count: metric.GetCounter().GetValue()}
			for _, label := range metric.Label {
				switch label.GetName() {
				case "level":
					lo.Level = label.GetValue()
				case "outcome":
					lo.Outcome = label.GetValue()
				}
			}
			totals = append(totals, lo)
		}
	}
	return totals
}

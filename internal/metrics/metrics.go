package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics. Record methods are safe on a nil
// Registry so components can run without metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics of the scrape endpoint
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Decision metrics
	decisionsTotal     *prometheus.CounterVec
	regimeStrength     *prometheus.GaugeVec
	riskCheckFailures  *prometheus.CounterVec
	providerFetches    *prometheus.CounterVec
	providerFetchTimes *prometheus.HistogramVec

	// Simulation metrics
	backtestEpisodes *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	trainingEpisodes *prometheus.CounterVec
	trainingEpsilon  *prometheus.GaugeVec
	trainingReward   *prometheus.GaugeVec
	trainingLoss     *prometheus.GaugeVec
	replayBufferSize *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aporte_decisions_total",
			Help: "Total number of contribution decisions",
		},
		[]string{"profile", "regime", "degraded"},
	)
	r.regimeStrength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aporte_regime_strength",
			Help: "Strength of the last classified regime",
		},
		[]string{"profile"},
	)
	r.riskCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aporte_risk_check_failures_total",
			Help: "Allocations whose projected risk exceeded the profile limits",
		},
		[]string{"profile"},
	)
	r.providerFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aporte_provider_fetch_total",
			Help: "Total number of provider fetches",
		},
		[]string{"source", "status"},
	)
	r.providerFetchTimes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aporte_provider_fetch_duration_seconds",
			Help:    "Provider fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	r.backtestEpisodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aporte_backtest_episodes_total",
			Help: "Total number of backtest episodes",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aporte_backtest_duration_seconds",
			Help:    "Backtest episode duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	r.trainingEpisodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aporte_training_episodes_total",
			Help: "Total number of training episodes",
		},
		[]string{"profile"},
	)
	r.trainingEpsilon = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aporte_training_epsilon",
			Help: "Current exploration rate",
		},
		[]string{"profile"},
	)
	r.trainingReward = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aporte_training_episode_reward",
			Help: "Total reward of the last training episode",
		},
		[]string{"profile"},
	)
	r.trainingLoss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aporte_training_loss",
			Help: "Mean TD loss of the last training episode",
		},
		[]string{"profile"},
	)
	r.replayBufferSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aporte_replay_buffer_size",
			Help: "Transitions held in the replay buffer",
		},
		[]string{"profile"},
	)

	reg.MustRegister(r.decisionsTotal)
	reg.MustRegister(r.regimeStrength)
	reg.MustRegister(r.riskCheckFailures)
	reg.MustRegister(r.providerFetches)
	reg.MustRegister(r.providerFetchTimes)
	reg.MustRegister(r.backtestEpisodes)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.trainingEpisodes)
	reg.MustRegister(r.trainingEpsilon)
	reg.MustRegister(r.trainingReward)
	reg.MustRegister(r.trainingLoss)
	reg.MustRegister(r.replayBufferSize)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordDecision records a completed decision and its regime strength.
func (r *Registry) RecordDecision(profile, regime string, strength float64, degraded bool) {
	if r == nil {
		return
	}
	r.decisionsTotal.WithLabelValues(profile, regime, strconv.FormatBool(degraded)).Inc()
	r.regimeStrength.WithLabelValues(profile).Set(strength)
}

// RecordRiskCheckFailure records an allocation that failed the profile check.
func (r *Registry) RecordRiskCheckFailure(profile string) {
	if r == nil {
		return
	}
	r.riskCheckFailures.WithLabelValues(profile).Inc()
}

// RecordProviderFetch records one provider call.
func (r *Registry) RecordProviderFetch(source string, err error, duration float64) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.providerFetches.WithLabelValues(source, status).Inc()
	r.providerFetchTimes.WithLabelValues(source).Observe(duration)
}

// RecordBacktest records a backtest episode.
func (r *Registry) RecordBacktest(status string, duration float64) {
	if r == nil {
		return
	}
	r.backtestEpisodes.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordTrainingEpisode records the outcome of one training episode.
func (r *Registry) RecordTrainingEpisode(profile string, reward, loss, epsilon float64) {
	if r == nil {
		return
	}
	r.trainingEpisodes.WithLabelValues(profile).Inc()
	r.trainingReward.WithLabelValues(profile).Set(reward)
	r.trainingLoss.WithLabelValues(profile).Set(loss)
	r.trainingEpsilon.WithLabelValues(profile).Set(epsilon)
}

// SetReplayBufferSize sets the replay buffer fill of a training run.
func (r *Registry) SetReplayBufferSize(profile string, size int) {
	if r == nil {
		return
	}
	r.replayBufferSize.WithLabelValues(profile).Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

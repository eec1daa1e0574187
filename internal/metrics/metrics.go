package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hookd"

// Recorder holds the deployment metrics. Each Recorder registers its collectors
// on the registry it was built with.
type Recorder struct {
	requests        *prometheus.CounterVec
	deployments     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	deploymentsLive prometheus.Gauge
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by response code.",
		}, []string{"code"}),
		deployments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Authorized deployments by outcome and last stage reached.",
		}, []string{"outcome", "stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of deployment stages.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"stage"}),
		deploymentsLive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployments_in_progress",
			Help:      "Deployments currently running.",
		}),
	}
}

func (in *Recorder) Request(code string) {
	in.requests.WithLabelValues(code).Inc()
}

func (in *Recorder) DeploymentStart() {
	in.deploymentsLive.Inc()
}

func (in *Recorder) DeploymentEnd(stage string, err error) {
	in.deploymentsLive.Dec()
	if err != nil {
		in.deployments.WithLabelValues("failed", stage).Inc()
		return
	}
	in.deployments.WithLabelValues("succeeded", stage).Inc()
}

func (in *Recorder) Stage(stage string, took time.Duration) {
	in.stageDuration.WithLabelValues(stage).Observe(took.Seconds())
}

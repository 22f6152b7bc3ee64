package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dinor"

// Recorder collects the counters and timings of scoring, closures and ranking.
type Recorder interface {
	PredictionsScored(points int)
	MatchScored(d time.Duration)
	ClosureAction(action string)
	RankingUpdated(users int, d time.Duration)
	LeaderboardCache(hit bool)
}

type prometheusRecorder struct {
	predictionsScored *prometheus.CounterVec
	matchScoring      prometheus.Histogram
	closureActions    *prometheus.CounterVec
	rankingDuration   prometheus.Histogram
	rankedUsers       prometheus.Gauge
	cacheLookups      *prometheus.CounterVec
}

// NewPrometheus registers the service collectors on reg.
func NewPrometheus(reg prometheus.Registerer) Recorder {
	r := &prometheusRecorder{
		predictionsScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_scored_total",
			Help:      "Predictions scored, by points earned.",
		}, []string{"points"}),
		matchScoring: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_scoring_duration_seconds",
			Help:      "Time spent scoring all pending predictions of one match.",
			Buckets:   prometheus.DefBuckets,
		}),
		closureActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closure_scheduler_actions_total",
			Help:      "Closure scheduler decisions, by action.",
		}, []string{"action"}),
		rankingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "leaderboard_ranking_duration_seconds",
			Help:      "Time spent reranking the global leaderboard.",
			Buckets:   prometheus.DefBuckets,
		}),
		rankedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leaderboard_ranked_users",
			Help:      "Users ranked by the last leaderboard update.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_cache_lookups_total",
			Help:      "Top leaderboard cache lookups, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.predictionsScored,
		r.matchScoring,
		r.closureActions,
		r.rankingDuration,
		r.rankedUsers,
		r.cacheLookups,
	)
	return r
}

func (r *prometheusRecorder) PredictionsScored(points int) {
	var label string
	switch points {
	case 3:
		label = "3"
	case 1:
		label = "1"
	default:
		label = "0"
	}
	r.predictionsScored.WithLabelValues(label).Inc()
}

func (r *prometheusRecorder) MatchScored(d time.Duration) {
	r.matchScoring.Observe(d.Seconds())
}

func (r *prometheusRecorder) ClosureAction(action string) {
	r.closureActions.WithLabelValues(action).Inc()
}

func (r *prometheusRecorder) RankingUpdated(users int, d time.Duration) {
	r.rankedUsers.Set(float64(users))
	r.rankingDuration.Observe(d.Seconds())
}

func (r *prometheusRecorder) LeaderboardCache(hit bool) {
	if hit {
		r.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.cacheLookups.WithLabelValues("miss").Inc()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg for scraping.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

type noop struct{}

// NoOp discards everything. Used by the CLI and in tests.
func NoOp() Recorder { return noop{} }

func (noop) PredictionsScored(int) {}
func (noop) MatchScored(time.Duration) {}
func (noop) ClosureAction(string) {}
func (noop) RankingUpdated(int, time.Duration) {}
func (noop) LeaderboardCache(bool) {}

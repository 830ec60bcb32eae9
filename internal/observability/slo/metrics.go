// Package slo publishes service level indicators of the batch workers.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"research-scrapers/internal/domain/entity"
)

// SLO targets for batch runs.
const (
	// SuccessRatioSLO is the minimum share of scheduled items that must succeed (99%)
	SuccessRatioSLO = 0.99

	// AverageItemLatencySLO is the target average processing time of a successful item, in seconds
	AverageItemLatencySLO = 5.0
)

// SLO tracking metrics
// These gauges are set once per finished run from its ExecutionStats.
var (
	// SLOSuccessRatio tracks successful / scheduled items of the last run (0-1)
	SLOSuccessRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_batch_success_ratio",
			Help: "Success ratio of the last batch run (0-1), target: 0.99",
		},
		[]string{"engine"},
	)

	// SLOAverageItemLatency tracks the average processing time of the last run
	SLOAverageItemLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_batch_average_item_seconds",
			Help: "Average processing time of successful items in the last batch run, target: 5",
		},
		[]string{"engine"},
	)
)

// UpdateFromStats sets the SLO gauges for engine from a finished run.
// A run that scheduled nothing leaves the gauges untouched.
func UpdateFromStats(engine string, stats entity.ExecutionStats) {
	if stats.TotalItems == 0 {
		return
	}
	SLOSuccessRatio.WithLabelValues(engine).Set(float64(stats.SuccessfulItems) / float64(stats.TotalItems))
	SLOAverageItemLatency.WithLabelValues(engine).Set(stats.AverageProcessingTime.Seconds())
}

// MeetsTargets reports whether stats satisfies both SLO targets.
func MeetsTargets(stats entity.ExecutionStats) bool {
	if stats.TotalItems == 0 {
		return true
	}
	ratio := float64(stats.SuccessfulItems) / float64(stats.TotalItems)
	return ratio >= SuccessRatioSLO && stats.AverageProcessingTime.Seconds() <= AverageItemLatencySLO
}

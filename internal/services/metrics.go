package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ingestionRuns counts finished runs by mode and final status
	// (completed, completed_with_errors, failed, rejected).
	ingestionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_runs_total",
			Help: "Total number of coupon ingestion runs by outcome.",
		},
		[]string{"mode", "status"},
	)

	// ingestionRecords counts submitted records by mode and result.
	ingestionRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_records_total",
			Help: "Total number of coupon records submitted by ingestion runs.",
		},
		[]string{"mode", "result"},
	)

	// ingestionRetries counts individual-mode retries.
	ingestionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestion_retries_total",
			Help: "Total number of individual-mode record retries.",
		},
	)
)

func init() {
	prometheus.MustRegister(ingestionRuns, ingestionRecords, ingestionRetries)
}

package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ballotsCastCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrofund_ballots_cast_total",
		Help: "Number of ballots cast or replaced.",
	})
	datasetRowsIngestedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrofund_dataset_rows_ingested_total",
		Help: "Number of custom dataset rows accepted by CSV uploads.",
	})
	applicationsSubmittedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retrofund_applications_submitted_total",
		Help: "Number of applications submitted to rounds.",
	})
)

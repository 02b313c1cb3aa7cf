// Package metrics exposes Prometheus counters for the sync jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	leadsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadsync_leads_ingested_total",
			Help: "Total number of new leads persisted",
		},
	)

	leadsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadsync_leads_duplicate_total",
			Help: "Total number of leads skipped as already stored",
		},
	)

	ingestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_ingest_errors_total",
			Help: "Total number of ingestion errors by isolation level",
		},
		[]string{"level"},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadsync_token_refreshes_total",
			Help: "Total number of per-account credential refresh attempts",
		},
		[]string{"result"},
	)

	webhookNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadsync_webhook_notifications_total",
			Help: "Total number of leadgen webhook notifications received",
		},
	)
)

func RecordLeadIngested()  { leadsIngested.Inc() }
func RecordLeadDuplicate() { leadsDuplicate.Inc() }

// RecordIngestError counts one isolated ingestion failure. Level is the
// loop scope that absorbed it: "page", "form", or "lead".
func RecordIngestError(level string) { ingestErrors.WithLabelValues(level).Inc() }

// RecordTokenRefresh counts one per-account refresh attempt with result
// "success", "skipped", or "failure".
func RecordTokenRefresh(result string) { tokenRefreshes.WithLabelValues(result).Inc() }

func RecordWebhookNotification() { webhookNotifications.Inc() }

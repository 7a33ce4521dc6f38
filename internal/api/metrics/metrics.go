// Package metrics defines and registers all custom Prometheus metrics of the
// gatekeeper API. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics register themselves with the default Prometheus registry on
// package initialization.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatekeeper"

// ── Dispatch metrics ──────────────────────────────────────────────────────────

// PipelineOutcomesTotal counts finished pipelines.
// Labels:
//   - controller: the controller name (e.g. "AuthController")
//   - outcome: "value", "done", "detached" or "error"
var PipelineOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_outcomes_total",
		Help:      "Total number of endpoint pipelines run, by how they ended.",
	},
	[]string{"controller", "outcome"},
)

// PipelineDuration measures a pipeline from guard to serialization.
// Label:
//   - controller: the controller name
var PipelineDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_duration_seconds",
		Help:      "Duration of endpoint pipelines including authorization.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"controller"},
)

// RoutesUnmatchedTotal counts requests that matched no route.
var RoutesUnmatchedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "routes_unmatched_total",
		Help:      "Total number of requests that matched no registered route.",
	},
)

// ── Access-control metrics ────────────────────────────────────────────────────

// AuthDenialsTotal counts requests rejected by the guard.
// Label:
//   - reason: the error code (e.g. "token_expired", "user_blocked", "group_access_denied")
var AuthDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_denials_total",
		Help:      "Total number of requests denied by the authorization guard.",
	},
	[]string{"reason"},
)

// TokensIssuedTotal counts tokens handed out to callers.
// Label:
//   - grant_type: "password", "one-time" or "client_credentials"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of access tokens issued, by grant type.",
	},
	[]string{"grant_type"},
)

// RestrictionRulesLoaded reports the size of the current rule snapshot.
var RestrictionRulesLoaded = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "restriction_rules_loaded",
		Help:      "Number of restriction rules in the active snapshot.",
	},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsTotal counts notification delivery attempts.
// Labels:
//   - channel: "email" or "sms"
//   - result: "sent", "failed" or "dropped"
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notification deliveries, by channel and result.",
	},
	[]string{"channel", "result"},
)

// NotificationQueueDepth tracks the pending notifications in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var NotificationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Current number of notifications pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

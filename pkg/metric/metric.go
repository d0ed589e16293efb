// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all flashbid metrics using luxfi/metric.
type Metrics struct {
	metricsInstance metrics.Metrics

	// Bid path metrics
	BidsAccepted  metrics.Counter
	BidsRejected  metrics.CounterVec
	BidLatency    metrics.Histogram
	BidsUpserted  metrics.Counter
	MaxPriceBumps metrics.Counter

	// Settlement metrics
	SettlementsRun   metrics.Counter
	OrdersCreated    metrics.Counter
	StockConflicts   metrics.CounterVec
	SettlementLength metrics.Histogram

	// Cache metrics
	CampaignCacheHits metrics.CounterVec

	// Edge metrics
	WSConnections     metrics.Gauge
	BroadcastsSent    metrics.Counter
	RequestsProcessed metrics.CounterVec
	RateLimited       metrics.CounterVec
}

// NewMetrics creates the metrics instance using luxfi/metric.
func NewMetrics() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("flashbid")

	m := &Metrics{
		metricsInstance: metricsInstance,
	}

	m.BidsAccepted = metricsInstance.NewCounter("bids_accepted_total", "Total number of bids accepted")
	m.BidsRejected = metricsInstance.NewCounterVec(
		"bids_rejected_total",
		"Total number of bids rejected by reason",
		[]string{"reason"},
	)
	m.BidLatency = metricsInstance.NewHistogram(
		"bid_submit_duration_seconds",
		"Time to process a bid submission",
		prometheus.DefBuckets,
	)
	m.BidsUpserted = metricsInstance.NewCounter("bids_upserted_total", "Total durable bid upserts")
	m.MaxPriceBumps = metricsInstance.NewCounter("campaign_max_price_bumps_total", "Times the cached campaign max price advanced")

	m.SettlementsRun = metricsInstance.NewCounter("settlements_run_total", "Total settlement executions")
	m.OrdersCreated = metricsInstance.NewCounter("orders_created_total", "Total confirmed orders created")
	m.StockConflicts = metricsInstance.NewCounterVec(
		"stock_conflicts_total",
		"Inventory decrement failures by layer",
		[]string{"layer"},
	)
	m.SettlementLength = metricsInstance.NewHistogram(
		"settlement_duration_seconds",
		"Time to settle a campaign",
		prometheus.DefBuckets,
	)

	m.CampaignCacheHits = metricsInstance.NewCounterVec(
		"campaign_cache_lookups_total",
		"Campaign cache lookups by tier hit",
		[]string{"tier"},
	)

	m.WSConnections = metricsInstance.NewGauge("ws_connections", "Number of connected websocket subscribers")
	m.BroadcastsSent = metricsInstance.NewCounter("ws_broadcasts_total", "Total leaderboard snapshot broadcasts")
	m.RequestsProcessed = metricsInstance.NewCounterVec(
		"api_requests_processed_total",
		"Total number of API requests processed",
		[]string{"method", "status"},
	)
	m.RateLimited = metricsInstance.NewCounterVec(
		"api_rate_limited_total",
		"Requests rejected by the rate limiter",
		[]string{"scope"},
	)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export.
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer.
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}

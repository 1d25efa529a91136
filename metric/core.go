package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the ingestion pipeline metrics shared by every component.
type Metrics struct {
	// Router
	LinesTotal   *prometheus.CounterVec
	DecodeErrors *prometheus.CounterVec
	ListenerFans prometheus.Counter

	// Contact store
	Contacts       prometheus.Gauge
	MergesTotal    *prometheus.CounterVec
	PurgedTotal    prometheus.Counter
	CacheFlushes   *prometheus.CounterVec
	CacheEntries   prometheus.Gauge
	SinkFailures   prometheus.Counter
	OwnShipLastFix prometheus.Gauge

	// Transports
	TransportState      *prometheus.GaugeVec
	TransportReconnects *prometheus.CounterVec
	TransportBytes      *prometheus.CounterVec
	Connected           prometheus.Gauge
}

// NewMetrics creates the pipeline metrics without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		LinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "router",
				Name:      "lines_total",
				Help:      "Lines ingested, by classified dialect",
			},
			[]string{"dialect"},
		),
		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "router",
				Name:      "decode_errors_total",
				Help:      "Lines that could not be decoded, by dialect",
			},
			[]string{"dialect"},
		),
		ListenerFans: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "router",
				Name:      "listener_deliveries_total",
				Help:      "Raw lines handed to listeners",
			},
		),
		Contacts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "seatrack",
				Subsystem: "store",
				Name:      "contacts",
				Help:      "Live contacts in the store",
			},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "store",
				Name:      "merges_total",
				Help:      "Records merged into the store, by record kind",
			},
			[]string{"kind"},
		),
		PurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "store",
				Name:      "purged_total",
				Help:      "Contacts removed by age",
			},
		),
		CacheFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "store",
				Name:      "cache_flushes_total",
				Help:      "Label cache flushes, by outcome",
			},
			[]string{"status"},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "seatrack",
				Subsystem: "store",
				Name:      "cache_entries",
				Help:      "Entries in the persisted label cache",
			},
		),
		SinkFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "store",
				Name:      "sink_failures_total",
				Help:      "Contact updates the downstream sink rejected",
			},
		),
		OwnShipLastFix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "seatrack",
				Subsystem: "ownship",
				Name:      "last_fix_timestamp_seconds",
				Help:      "Unix timestamp of the latest own-ship position fix",
			},
		),
		TransportState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "seatrack",
				Subsystem: "transport",
				Name:      "state",
				Help:      "Transport state (0=disabled, 1=connecting, 2=connected, 3=failed)",
			},
			[]string{"transport"},
		),
		TransportReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Reconnect attempts after a failure",
			},
			[]string{"transport"},
		),
		TransportBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seatrack",
				Subsystem: "transport",
				Name:      "bytes_total",
				Help:      "Bytes read from the transport",
			},
			[]string{"transport"},
		),
		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "seatrack",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "1 when any transport is connected",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LinesTotal,
		m.DecodeErrors,
		m.ListenerFans,
		m.Contacts,
		m.MergesTotal,
		m.PurgedTotal,
		m.CacheFlushes,
		m.CacheEntries,
		m.SinkFailures,
		m.OwnShipLastFix,
		m.TransportState,
		m.TransportReconnects,
		m.TransportBytes,
		m.Connected,
	}
}

package roster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_feed_events_total",
		Help: "Change feed events received, by kind",
	}, []string{"kind"})

	feedEchoDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roster_feed_echo_discarded_total",
		Help: "Change feed events discarded because the write was already applied locally",
	})

	feedStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roster_feed_state",
		Help: "Current change feed state (1=connecting 2=subscribed 3=degraded 4=closed)",
	})

	feedReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roster_feed_reconnects_total",
		Help: "Change feed reconnect attempts scheduled",
	})

	pollFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_poll_fetches_total",
		Help: "Full reconciliation fetches of the loaded span, by result",
	}, []string{"result"})

	rangeFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_range_fetches_total",
		Help: "Range loader fetches, by result",
	}, []string{"result"})

	cacheRecordsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roster_cache_records",
		Help: "Records currently held in the roster cache",
	})
)

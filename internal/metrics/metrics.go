package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TradesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zigfeed_trades_ingested_total",
		Help: "Trades merged into the live tape from snapshot or stream.",
	})

	TradesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zigfeed_trades_dropped_total",
		Help: "Stream items discarded as non-trades or unmappable payloads.",
	})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zigfeed_stream_reconnects_total",
		Help: "Scheduled stream reconnect attempts.",
	})

	SnapshotFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zigfeed_snapshot_fetches_total",
		Help: "REST snapshot fetches by result.",
	}, []string{"result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

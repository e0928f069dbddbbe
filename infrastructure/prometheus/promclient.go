package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var FramesReceived = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "deribit_frames_received_total",
		Help: "frames read from the streaming connection",
	},
)

var FrameDecodeFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "deribit_frame_decode_failures_total",
		Help: "frames dropped because they could not be decoded",
	},
)

var BookUpdates = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "deribit_book_updates_total",
		Help: "book notifications applied to the local order books",
	},
)

var ActiveSubscriptions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "deribit_active_subscriptions",
		Help: "instruments with a registered book subscriber",
	},
)

func StartPromClientServer(addr string, logger *zap.Logger) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(FramesReceived)
	reg.MustRegister(FrameDecodeFailures)
	reg.MustRegister(BookUpdates)
	reg.MustRegister(ActiveSubscriptions)
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)
	logger.Info("prometheus server listening", zap.String("addr", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("prometheus server stopped", zap.Error(err))
	}
}

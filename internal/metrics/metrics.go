package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of reference ticks ingested"},
		[]string{"symbol"},
	)
	BookUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "book_updates_total", Help: "Order book updates accepted per outcome token"},
		[]string{"asset"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Simulated orders by outcome"},
		[]string{"side", "mode", "result"},
	)
	SettlementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "settlements_total", Help: "Rounds settled"},
	)
	TelemetryDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "telemetry_dropped_total", Help: "Telemetry events dropped because the queue was full"},
	)
	CashBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "cash_balance", Help: "Simulated cash balance"},
	)
	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "realized_pnl", Help: "Cumulative realized PnL"},
	)
	RoundPhase = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "round_phase", Help: "Current round phase (0 searching, 1 active, 2 freezing, 3 settling)"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, BookUpdatesTotal, OrdersTotal, SettlementsTotal,
		TelemetryDropped, CashBalance, RealizedPnL, RoundPhase,
	)
}

// Serve exposes /metrics and, when status is non-nil, /status on addr.
func Serve(addr string, status http.Handler) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if status != nil {
		r.Handle("/status", status).Methods(http.MethodGet)
	}
	srv := &http.Server{Addr: addr, Handler: r}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the simulation core and
// provides a handler to expose them over HTTP.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Nodes          prometheus.Gauge
	Connections    prometheus.Gauge
	Contracts      prometheus.Gauge
	Packets        *prometheus.GaugeVec
	PoweredDevices prometheus.Gauge
	PowerDrawWatts prometheus.Gauge
	Overcommitted  prometheus.Gauge
	MoneyBalance   prometheus.Gauge

	PaymentsTotal      prometheus.Counter
	ContractsCompleted prometheus.Counter
	TickDuration       prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_nodes",
		Help: "Current number of nodes in the topology.",
	}))
	if err != nil {
		return nil, err
	}
	connections, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_connections",
		Help: "Current number of connections in the topology.",
	}))
	if err != nil {
		return nil, err
	}
	contracts, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_contracts_active",
		Help: "Contracts currently holding resources.",
	}))
	if err != nil {
		return nil, err
	}

	packets := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_packets",
		Help: "Live packets by pipeline state.",
	}, []string{"state"})
	packets, err = registerGaugeVec(reg, packets)
	if err != nil {
		return nil, err
	}

	powered, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_powered_devices",
		Help: "Devices whose powered flag is set after the last resolver pass.",
	}))
	if err != nil {
		return nil, err
	}
	draw, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_power_draw_watts",
		Help: "Total demand booked onto PSUs by the last resolver pass.",
	}))
	if err != nil {
		return nil, err
	}
	overcommitted, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_power_overcommitted_sources",
		Help: "PSUs and distributors whose booked demand exceeds capacity.",
	}))
	if err != nil {
		return nil, err
	}
	balance, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_money_balance",
		Help: "Current money ledger balance.",
	}))
	if err != nil {
		return nil, err
	}

	payments, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_contract_payments_total",
		Help: "Cumulative contract payments received.",
	}))
	if err != nil {
		return nil, err
	}
	completed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_contracts_completed_total",
		Help: "Contracts detected complete and purged.",
	}))
	if err != nil {
		return nil, err
	}

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock cost of one tick pipeline execution.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
	tickDuration, err = registerHistogram(reg, tickDuration)
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:           gatherer,
		Nodes:              nodes,
		Connections:        connections,
		Contracts:          contracts,
		Packets:            packets,
		PoweredDevices:     powered,
		PowerDrawWatts:     draw,
		Overcommitted:      overcommitted,
		MoneyBalance:       balance,
		PaymentsTotal:      payments,
		ContractsCompleted: completed,
		TickDuration:       tickDuration,
	}, nil
}

// SetTopologyCounts updates the structural gauges.
func (c *SimCollector) SetTopologyCounts(nodes, connections, contracts int) {
	c.Nodes.Set(float64(nodes))
	c.Connections.Set(float64(connections))
	c.Contracts.Set(float64(contracts))
}

// SetPowerStats updates the power gauges after a resolver pass.
func (c *SimCollector) SetPowerStats(drawWatts float64, poweredDevices, overcommitted int) {
	c.PowerDrawWatts.Set(drawWatts)
	c.PoweredDevices.Set(float64(poweredDevices))
	c.Overcommitted.Set(float64(overcommitted))
}

// SetPacketCounts rewrites the per-state packet gauge. States absent
// from the map are reset to zero so stale series don't linger.
func (c *SimCollector) SetPacketCounts(counts map[string]int) {
	for _, state := range []string{"pending", "downloading", "processing", "uploading", "complete"} {
		c.Packets.WithLabelValues(state).Set(float64(counts[state]))
	}
}

// RecordSettlement tracks the money side of one tick.
func (c *SimCollector) RecordSettlement(payments float64, completedContracts int, balance float64) {
	if payments > 0 {
		c.PaymentsTotal.Add(payments)
	}
	if completedContracts > 0 {
		c.ContractsCompleted.Add(float64(completedContracts))
	}
	c.MoneyBalance.Set(balance)
}

// ObserveTickDuration records the wall-clock cost of one tick.
func (c *SimCollector) ObserveTickDuration(seconds float64) {
	c.TickDuration.Observe(seconds)
}

// Handler exposes the collector's registry in Prometheus text format.
func (c *SimCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Gauge), nil
		}
		return nil, err
	}
	return g, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec), nil
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, ctr prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(ctr); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter), nil
		}
		return nil, err
	}
	return ctr, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Histogram), nil
		}
		return nil, err
	}
	return h, nil
}

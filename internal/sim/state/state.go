// Package state owns the single mutable simulation instance: topology,
// work queue, contract set, and money ledger. Nothing outside this
// package mutates simulation state between pipeline stages; external
// layers go through the methods here, which take the coarse
// context-level lock.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rackworks/datacenter-simulator/catalog"
	"github.com/rackworks/datacenter-simulator/core"
	"github.com/rackworks/datacenter-simulator/internal/logging"
	"github.com/rackworks/datacenter-simulator/internal/observability"
	"github.com/rackworks/datacenter-simulator/model"
)

// Re-export the sentinel errors external layers match on, so callers
// can depend on state.* instead of reaching into core and catalog.
var (
	ErrNodeNotFound     = core.ErrNodeNotFound
	ErrConnNotFound     = core.ErrConnNotFound
	ErrContractNotFound = core.ErrContractNotFound
	ErrNotRackMountable = core.ErrNotRackMountable
	ErrUnknownSpec      = catalog.ErrUnknownSpec
)

// SimMetricsRecorder receives gauge updates after every tick and
// mutation. The observability collector satisfies it; tests substitute
// lightweight fakes.
type SimMetricsRecorder interface {
	SetTopologyCounts(nodes, connections, contracts int)
	SetPowerStats(drawWatts float64, poweredDevices, overcommitted int)
	SetPacketCounts(counts map[string]int)
	RecordSettlement(payments float64, completedContracts int, balance float64)
	ObserveTickDuration(seconds float64)
}

// SimulationContext coordinates the engine, the catalog, and the money
// ledger behind one lock.
type SimulationContext struct {
	mu sync.RWMutex

	engine  *core.Engine
	catalog *catalog.Catalog

	// money is the external-facing ledger balance; tick settlement
	// and placement both move it.
	money float64

	log     logging.Logger
	metrics SimMetricsRecorder
	tracer  trace.Tracer
}

// Option customises SimulationContext construction.
type Option func(*SimulationContext)

// WithLogger attaches a structured logger for state-level events.
func WithLogger(l logging.Logger) Option {
	return func(s *SimulationContext) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder updated after every tick.
func WithMetrics(m SimMetricsRecorder) Option {
	return func(s *SimulationContext) {
		s.metrics = m
	}
}

// WithStartingBalance seeds the money ledger.
func WithStartingBalance(balance float64) Option {
	return func(s *SimulationContext) {
		s.money = balance
	}
}

// New creates a simulation context over a fresh engine and the given
// read-only catalog.
func New(cat *catalog.Catalog, opts ...Option) *SimulationContext {
	s := &SimulationContext{
		engine:  core.NewEngine(),
		catalog: cat,
		log:     logging.Noop(),
		tracer:  observability.Tracer("simulation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	wireCableCosts(s.engine, cat)
	return s
}

// wireCableCosts copies the catalog's per-class connectivity costs onto
// the engine's billing table. Rebuilt engines (restore, clear) go
// through here as well.
func wireCableCosts(e *core.Engine, cat *catalog.Catalog) {
	if cat == nil {
		return
	}
	for _, cable := range cat.Cables() {
		e.CableCosts[cable.Class] = cable.CostPerSecond
	}
}

//
// ---------- Topology mutation ----------
//

// PlaceNode instantiates a catalog spec as a new node, optionally
// mounting it straight into a rack. An unknown spec ID aborts only this
// action. Placement charges the spec's price to the ledger.
func (s *SimulationContext) PlaceNode(ctx context.Context, nodeID, specID, rackID string) (*core.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec, err := s.catalog.Hardware(specID)
	if err != nil {
		return nil, err
	}
	n, err := s.catalog.Instantiate(nodeID, specID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Topo.AddNode(n); err != nil {
		return nil, err
	}
	if rackID != "" {
		err := s.engine.Topo.PlaceInRack(nodeID, rackID)
		if err == nil && !spec.RackMountable {
			// The category allows mounting but this particular spec
			// does not (free-standing modems, tower servers).
			err = fmt.Errorf("%w: spec %q", core.ErrNotRackMountable, specID)
		}
		if err != nil {
			// Roll the placement back; a half-mounted node would
			// leak out of the rack's capacity accounting.
			_ = s.engine.Topo.DeleteNode(nodeID)
			return nil, err
		}
	}

	s.money -= spec.Price

	s.log.Info(ctx, "node placed",
		logging.String("node_id", nodeID),
		logging.String("spec_id", specID),
		logging.String("rack_id", rackID),
	)
	s.updateStructuralMetrics()
	return n, nil
}

// DeleteNode removes a node. Removing equipment mid-flight is always
// legal: packets assigned to a deleted server simply stop advancing.
func (s *SimulationContext) DeleteNode(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Topo.DeleteNode(nodeID); err != nil {
		return err
	}
	s.log.Info(ctx, "node deleted", logging.String("node_id", nodeID))
	s.updateStructuralMetrics()
	return nil
}

// Connect validates and persists an edge. Validation failures are
// transient messages to the caller; no state changes.
func (s *SimulationContext) Connect(ctx context.Context, aID, bID string, class core.CableClass) (*core.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.engine.Connect(aID, bID, class)
	if err != nil {
		s.log.Debug(ctx, "connection rejected",
			logging.String("a", aID),
			logging.String("b", bID),
			logging.String("class", string(class)),
			logging.String("reason", err.Error()),
		)
		return nil, err
	}
	s.log.Info(ctx, "connection added", logging.String("conn_id", conn.ID))
	s.updateStructuralMetrics()
	return conn, nil
}

// Disconnect removes an edge by ID.
func (s *SimulationContext) Disconnect(ctx context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Topo.DeleteConnection(connID); err != nil {
		return err
	}
	s.log.Info(ctx, "connection removed", logging.String("conn_id", connID))
	s.updateStructuralMetrics()
	return nil
}

//
// ---------- Contracts ----------
//

// OfferContract runs a generator request through the auto-accept gate.
// Accepted contracts get a fresh UUID and decompose into packets
// immediately; withheld requests leave no trace.
func (s *SimulationContext) OfferContract(ctx context.Context, req model.ContractRequest) (*model.Contract, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.engine.OfferContract(uuid.NewString(), req)
	if !ok {
		s.log.Debug(ctx, "contract withheld by auto-accept",
			logging.String("type", string(req.Type)),
			logging.Int("cpu_cores", req.Demand.CPUCores),
			logging.Float64("storage_gb", req.Demand.StorageGB),
		)
		return nil, false
	}
	s.log.Info(ctx, "contract accepted",
		logging.String("contract_id", c.ID),
		logging.String("type", string(c.Type)),
		logging.Int("packets", c.PacketCount),
	)
	s.updateStructuralMetrics()
	return c, true
}

// AcceptContract registers a pre-built contract unconditionally,
// bypassing the auto-accept gate. The save/load layer uses this path.
func (s *SimulationContext) AcceptContract(ctx context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.AcceptContract(c); err != nil {
		return err
	}
	s.updateStructuralMetrics()
	return nil
}

// RemoveContract drops a contract and purges its packets in bulk.
func (s *SimulationContext) RemoveContract(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.RemoveContract(id); err != nil {
		return err
	}
	s.log.Info(ctx, "contract removed", logging.String("contract_id", id))
	s.updateStructuralMetrics()
	return nil
}

// ContractProgress reports the smooth 0–100 blend and the stage
// classification for one contract. The second return is false for an
// unknown contract.
func (s *SimulationContext) ContractProgress(id string) (progress float64, stage core.ContractStage, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	progress, ok = s.engine.Contracts.SmoothProgress(s.engine.Queue, id)
	if !ok {
		return 0, core.StageIdle, false
	}
	stage, _ = s.engine.Contracts.Stage(s.engine.Queue, id)
	return progress, stage, true
}

//
// ---------- Advancing time ----------
//

// Advance runs the tick pipeline once for dt simulated seconds and
// settles the tick's money movement into the ledger.
func (s *SimulationContext) Advance(ctx context.Context, dt float64) core.TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx, dt)
}

// AdvanceBurst executes n identical ticks within one external frame,
// for max-speed mode. Per-call semantics are identical to n separate
// Advance calls.
func (s *SimulationContext) AdvanceBurst(ctx context.Context, n int, dt float64) core.TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total core.TickReport
	for i := 0; i < n; i++ {
		total.Merge(s.advanceLocked(ctx, dt))
	}
	return total
}

func (s *SimulationContext) advanceLocked(ctx context.Context, dt float64) core.TickReport {
	ctx, span := s.tracer.Start(ctx, "sim.tick",
		trace.WithAttributes(attribute.Float64("sim.dt_seconds", dt)))
	defer span.End()

	started := time.Now()
	report := s.engine.Tick(dt)
	s.money += report.NetDelta()

	span.SetAttributes(
		attribute.Float64("sim.payments", report.Payments),
		attribute.Int("sim.completed_contracts", len(report.CompletedContracts)),
	)

	if s.metrics != nil {
		s.metrics.ObserveTickDuration(time.Since(started).Seconds())
		s.metrics.SetPowerStats(
			s.engine.Power().TotalDrawWatts(),
			s.poweredDeviceCountLocked(),
			s.engine.Power().OvercommittedSources(),
		)
		s.metrics.RecordSettlement(report.Payments, len(report.CompletedContracts), s.money)
		s.metrics.SetPacketCounts(packetCountLabels(s.engine.Queue.CountsByState()))
	}

	for _, id := range report.CompletedContracts {
		s.log.Info(ctx, "contract completed", logging.String("contract_id", id))
	}
	return report
}

//
// ---------- Read access ----------
//

// Balance returns the current ledger balance.
func (s *SimulationContext) Balance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.money
}

// Engine exposes the underlying engine for read-only callers (tests,
// the HTTP surface). Mutations must go through the context methods.
func (s *SimulationContext) Engine() *core.Engine {
	return s.engine
}

// Catalog returns the read-only specification tables.
func (s *SimulationContext) Catalog() *catalog.Catalog {
	return s.catalog
}

// Clear resets topology, queue, contracts, and ledger.
func (s *SimulationContext) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine = core.NewEngine()
	wireCableCosts(s.engine, s.catalog)
	s.money = 0
	s.updateStructuralMetrics()
}

// updateStructuralMetrics refreshes the count gauges.
//
// NOTE: caller must hold s.mu.
func (s *SimulationContext) updateStructuralMetrics() {
	if s.metrics == nil {
		return
	}
	active := 0
	for _, c := range s.engine.Contracts.All() {
		if c.Active() {
			active++
		}
	}
	s.metrics.SetTopologyCounts(
		len(s.engine.Topo.Nodes()),
		len(s.engine.Topo.Connections()),
		active,
	)
	s.metrics.SetPacketCounts(packetCountLabels(s.engine.Queue.CountsByState()))
}

func (s *SimulationContext) poweredDeviceCountLocked() int {
	count := 0
	for _, n := range s.engine.Topo.Nodes() {
		if n.Powered && n.DrawsPower() {
			count++
		}
	}
	return count
}

func packetCountLabels(counts map[core.PacketState]int) map[string]int {
	out := make(map[string]int, len(counts))
	for state, n := range counts {
		out[string(state)] = n
	}
	return out
}

// String implements fmt.Stringer for debug logging.
func (s *SimulationContext) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("SimulationContext{nodes=%d conns=%d contracts=%d balance=%.2f}",
		len(s.engine.Topo.Nodes()), len(s.engine.Topo.Connections()),
		len(s.engine.Contracts.All()), s.money)
}

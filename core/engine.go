package core

import (
	"fmt"

	"github.com/rackworks/datacenter-simulator/model"
)

// Default money rates. Callers can override the engine fields before
// the first tick; the values themselves come from the running-cost
// table of the hardware catalog era they were tuned against.
const (
	DefaultPowerCostPerWattSecond = 0.0001
	DefaultConnectivityCostPerSec = 0.002
)

// TickReport summarises one tick's money movement and completions for
// the external ledger and UI.
type TickReport struct {
	Payments           float64
	PowerCost          float64
	ConnectivityCost   float64
	CompletedContracts []string
}

// NetDelta is the signed money movement of the tick.
func (r TickReport) NetDelta() float64 {
	return r.Payments - r.PowerCost - r.ConnectivityCost
}

// Merge folds another report into this one; used by burst execution.
func (r *TickReport) Merge(o TickReport) {
	r.Payments += o.Payments
	r.PowerCost += o.PowerCost
	r.ConnectivityCost += o.ConnectivityCost
	r.CompletedContracts = append(r.CompletedContracts, o.CompletedContracts...)
}

// Engine runs the per-tick resolver pipeline over one simulation's
// state: power distribution, packet admission and progress, contract
// aggregation, and settlement. Execution is single-threaded and
// synchronous; each stage sees the effects of the previous one within
// the same tick, and that ordering is load-bearing.
type Engine struct {
	Topo      *Topology
	Queue     *WorkQueue
	Contracts *ContractSet

	power     *PowerResolver
	bandwidth *BandwidthArbitrator

	PowerCostPerWattSecond float64
	ConnectivityCostPerSec float64

	// CableCosts overrides the flat connectivity cost per cable
	// class; classes without an entry bill ConnectivityCostPerSec.
	// The owning context fills this from the cable catalog.
	CableCosts map[CableClass]float64

	tick      int
	listeners []func(tick int, report TickReport)
}

// NewEngine wires an engine over fresh state.
func NewEngine() *Engine {
	topo := NewTopology()
	return &Engine{
		Topo:                   topo,
		Queue:                  NewWorkQueue(),
		Contracts:              NewContractSet(),
		power:                  NewPowerResolver(topo),
		bandwidth:              NewBandwidthArbitrator(topo),
		PowerCostPerWattSecond: DefaultPowerCostPerWattSecond,
		ConnectivityCostPerSec: DefaultConnectivityCostPerSec,
		CableCosts:             make(map[CableClass]float64),
	}
}

// RegisterTickListener adds a callback invoked after every tick.
func (e *Engine) RegisterTickListener(fn func(tick int, report TickReport)) {
	e.listeners = append(e.listeners, fn)
}

// Tick advances the simulation by dt seconds, executing the full
// pipeline exactly once.
func (e *Engine) Tick(dt float64) TickReport {
	// Power first: every later stage reads the powered flags this
	// pass writes.
	e.power.Resolve()

	// Admission, then the three progress stages.
	e.Queue.Admit(e.Topo)

	transferring := e.Queue.TransferringContracts()
	e.Queue.StepDownloads(e.Topo, dt, e.rateFn(TransferDownload, transferring))
	e.Queue.StepProcessing(e.Topo, dt)
	e.Queue.StepUploads(e.Topo, dt, e.rateFn(TransferUpload, transferring))

	// Contract aggregation and settlement.
	e.Contracts.UpdateStates(e.Queue)
	settlement := e.Contracts.Settle(e.Queue, dt)

	report := TickReport{
		Payments:           settlement.Payments,
		PowerCost:          e.power.TotalDrawWatts() * e.PowerCostPerWattSecond * dt,
		ConnectivityCost:   e.connectivityCost(dt),
		CompletedContracts: settlement.CompletedContracts,
	}

	e.tick++
	for _, fn := range e.listeners {
		fn(e.tick, report)
	}
	return report
}

// RunBurst executes n identical ticks back to back, for max-speed mode.
// The end state is exactly what n separate Tick calls would produce.
func (e *Engine) RunBurst(n int, dt float64) TickReport {
	var total TickReport
	for i := 0; i < n; i++ {
		total.Merge(e.Tick(dt))
	}
	return total
}

// TickCount returns the number of ticks executed so far.
func (e *Engine) TickCount() int {
	return e.tick
}

// AcceptContract registers a contract unconditionally and decomposes it
// into packets on the work queue. Packets only ever come into existence
// here.
func (e *Engine) AcceptContract(c *model.Contract) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("nil or empty contract")
	}
	if err := e.Contracts.Add(c); err != nil {
		return err
	}
	e.Queue.AddContractPackets(c)
	return nil
}

// OfferContract applies the auto-accept admission rule to a generator
// request. Withheld requests leave no trace; accepted ones are
// decomposed immediately.
func (e *Engine) OfferContract(id string, req model.ContractRequest) (*model.Contract, bool) {
	if !e.Contracts.CanAutoAccept(e.Topo, &req) {
		return nil, false
	}
	c := model.NewContract(id, req)
	if err := e.AcceptContract(c); err != nil {
		return nil, false
	}
	return c, true
}

// RemoveContract drops a contract and purges its packets, covering the
// external "contract removed" path.
func (e *Engine) RemoveContract(id string) error {
	if err := e.Contracts.Remove(id); err != nil {
		return err
	}
	e.Queue.PurgeContract(id)
	return nil
}

// Connect validates and persists a new edge in one step; this is the
// only mutation path external layers should use for connections.
func (e *Engine) Connect(aID, bID string, class CableClass) (*Connection, error) {
	a := e.Topo.GetNode(aID)
	b := e.Topo.GetNode(bID)
	if a == nil {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, aID)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, bID)
	}
	if err := ValidateConnection(e.Topo, a, b, class); err != nil {
		return nil, err
	}
	conn := &Connection{NodeA: aID, NodeB: bID, Class: class}
	if err := e.Topo.AddConnection(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// rateFn binds the arbitrator to a contract lookup so the work queue
// can ask for percent-per-second figures by contract ID.
func (e *Engine) rateFn(dir TransferDirection, transferring int) func(contractID string) float64 {
	return func(contractID string) float64 {
		c := e.Contracts.Get(contractID)
		if c == nil {
			return 0
		}
		return e.bandwidth.RatePercentPerSecond(c.Demand.TransferRateMbps, dir, transferring)
	}
}

// connectivityCost charges every user-visible cable its per-class cost
// per second. Rack-internal auto wiring is free.
func (e *Engine) connectivityCost(dt float64) float64 {
	total := 0.0
	for _, conn := range e.Topo.Connections() {
		if conn.RackInternal {
			continue
		}
		cost, ok := e.CableCosts[conn.Class]
		if !ok {
			cost = e.ConnectivityCostPerSec
		}
		total += cost * dt
	}
	return total
}

// Power exposes the resolver for callers that need draw/overcommit
// figures without re-walking the topology.
func (e *Engine) Power() *PowerResolver {
	return e.power
}

// Bandwidth exposes the arbitrator for display-layer rate queries.
func (e *Engine) Bandwidth() *BandwidthArbitrator {
	return e.bandwidth
}

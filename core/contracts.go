package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rackworks/datacenter-simulator/model"
)

var (
	ErrContractExists   = errors.New("contract already exists")
	ErrContractNotFound = errors.New("contract not found")
)

// AutoAcceptHeadroom is the fraction of declared capacity a pending
// contract may fill before auto-accept withholds it. Checked per
// resource dimension independently.
const AutoAcceptHeadroom = 0.95

// ContractStage is the reporting-only classification of where a
// contract's work currently sits. Lifecycle decisions never read this;
// they use the coarse ContractState.
type ContractStage string

const (
	StageIdle     ContractStage = "idle"
	StageDownload ContractStage = "download"
	StageCompute  ContractStage = "compute"
	StageStore    ContractStage = "store"
	StageUpload   ContractStage = "upload"
)

// ContractSet owns the accepted contracts in acceptance order and
// derives per-contract progress, stage, and payment events from the
// packet set.
type ContractSet struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*model.Contract
}

func NewContractSet() *ContractSet {
	return &ContractSet{byID: make(map[string]*model.Contract)}
}

func (s *ContractSet) Add(c *model.Contract) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("nil or empty contract")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[c.ID]; exists {
		return fmt.Errorf("%w: %q", ErrContractExists, c.ID)
	}
	s.byID[c.ID] = c
	s.order = append(s.order, c.ID)
	return nil
}

// Get returns a contract by ID, or nil if missing.
func (s *ContractSet) Get(id string) *model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// All returns the contracts in acceptance order.
func (s *ContractSet) All() []*model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Contract, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *ContractSet) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[id]; !exists {
		return fmt.Errorf("%w: %q", ErrContractNotFound, id)
	}
	delete(s.byID, id)
	kept := s.order[:0]
	for _, oid := range s.order {
		if oid != id {
			kept = append(kept, oid)
		}
	}
	s.order = kept
	return nil
}

//
// ---------- Progress views ----------
//

// SmoothProgress blends every stage fraction of the contract's packets
// into a 0–100 figure weighted by stage totals. With no live packets it
// falls back to the coarse state: 100 for complete, 0 otherwise. The
// second return is false for an unknown contract.
func (s *ContractSet) SmoothProgress(q *WorkQueue, contractID string) (float64, bool) {
	c := s.Get(contractID)
	if c == nil {
		return 0, false
	}
	packets := q.PacketsForContract(contractID)
	if len(packets) == 0 {
		if c.State == model.ContractComplete {
			return 100, true
		}
		return 0, true
	}

	done, total := 0.0, 0.0
	for _, p := range packets {
		done += p.DownloadProgress*p.InputSize +
			p.ProcessingProgress*p.ComputeTime +
			p.UploadProgress*p.OutputSize
		total += p.InputSize + p.ComputeTime + p.OutputSize
	}
	if total <= 0 {
		return 0, true
	}
	return done / total * 100, true
}

// Stage classifies each packet into exactly one bucket with first-match
// precedence (download, then compute/store, then upload) and reports
// the first non-empty bucket, with fractional progress computed only
// within that bucket. The views here and the contract state machine may
// transiently disagree; this one is for display.
func (s *ContractSet) Stage(q *WorkQueue, contractID string) (ContractStage, float64) {
	c := s.Get(contractID)
	if c == nil {
		return StageIdle, 0
	}

	var download, work, upload []*Packet
	for _, p := range q.PacketsForContract(contractID) {
		switch {
		case p.DownloadProgress < 1 && p.ProcessingProgress == 0 && p.UploadProgress == 0:
			download = append(download, p)
		case p.ProcessingProgress < 1 && p.UploadProgress == 0:
			work = append(work, p)
		case p.UploadProgress < 1:
			upload = append(upload, p)
		}
	}

	workStage := StageCompute
	if c.Type == model.ContractStore {
		workStage = StageStore
	}

	switch {
	case len(download) > 0:
		return StageDownload, averageOf(download, func(p *Packet) float64 { return p.DownloadProgress })
	case len(work) > 0:
		return workStage, averageOf(work, func(p *Packet) float64 { return p.ProcessingProgress })
	case len(upload) > 0:
		return StageUpload, averageOf(upload, func(p *Packet) float64 { return p.UploadProgress })
	}
	return StageIdle, 0
}

func averageOf(packets []*Packet, f func(*Packet) float64) float64 {
	sum := 0.0
	for _, p := range packets {
		sum += f(p)
	}
	return sum / float64(len(packets))
}

// UpdateStates drives the coarse per-contract state machine from packet
// counts. This is the canonical lifecycle: payment and purge decisions
// key off it. A contract that reached complete stays complete even
// after its packets are purged.
func (s *ContractSet) UpdateStates(q *WorkQueue) {
	for _, c := range s.All() {
		if c.State == model.ContractComplete {
			continue
		}
		packets := q.PacketsForContract(c.ID)
		if len(packets) == 0 {
			continue
		}

		var downloading, processing, uploading, complete int
		for _, p := range packets {
			switch p.State {
			case PacketDownloading:
				downloading++
			case PacketProcessing:
				processing++
			case PacketUploading:
				uploading++
			case PacketComplete:
				complete++
			case PacketPending:
			}
		}

		switch {
		case complete == len(packets):
			c.State = model.ContractComplete
		case downloading > 0:
			c.State = model.ContractDownloading
		case processing > 0:
			c.State = model.ContractComputing
		case uploading > 0:
			c.State = model.ContractUploading
		default:
			c.State = model.ContractIdle
		}
	}
}

//
// ---------- Settlement ----------
//

// SettlementReport is one tick's worth of contract money movement.
type SettlementReport struct {
	Payments           float64
	CompletedContracts []string
	PurgedPackets      int
}

// Settle pays out contract earnings for this tick and purges the
// packets of contracts that completed. Compute contracts pay their lump
// sum exactly once, on the tick every packet finished; store contracts
// pay per-second while at least one packet is in the storing
// (processing) stage and stop once all packets have moved on.
func (s *ContractSet) Settle(q *WorkQueue, dt float64) SettlementReport {
	var report SettlementReport
	for _, c := range s.All() {
		switch c.Type {
		case model.ContractCompute:
			if c.State == model.ContractComplete && !c.Paid {
				report.Payments += c.Payment.LumpSum
				c.Paid = true
			}
		case model.ContractStore:
			if s.anyStoring(q, c.ID) {
				report.Payments += c.Payment.PerSecond * dt
			}
		}

		if c.State == model.ContractComplete {
			if purged := q.PurgeContract(c.ID); purged > 0 {
				report.PurgedPackets += purged
				report.CompletedContracts = append(report.CompletedContracts, c.ID)
			}
		}
	}
	return report
}

func (s *ContractSet) anyStoring(q *WorkQueue, contractID string) bool {
	for _, p := range q.PacketsForContract(contractID) {
		if p.State == PacketProcessing {
			return true
		}
	}
	return false
}

//
// ---------- Auto-accept ----------
//

// DeclaredCapacity sums the topology's server capacity per dimension.
type DeclaredCapacity struct {
	CPUCores  int
	GPUCores  int
	StorageGB float64
}

func DeclaredCapacityOf(topo *Topology) DeclaredCapacity {
	var total DeclaredCapacity
	for _, server := range topo.NodesByCategory(CategoryServer) {
		if server.Server == nil {
			continue
		}
		total.CPUCores += server.Server.Cores
		total.GPUCores += server.Server.GPUs
		total.StorageGB += server.Server.StorageGB
	}
	return total
}

// ActiveDemand sums the demand of every contract still holding
// resources.
func (s *ContractSet) ActiveDemand() model.Demand {
	var d model.Demand
	for _, c := range s.All() {
		if !c.Active() {
			continue
		}
		d.CPUCores += c.Demand.CPUCores
		d.GPUCores += c.Demand.GPUCores
		d.StorageGB += c.Demand.StorageGB
	}
	return d
}

// CanAutoAccept reports whether a pending contract fits under the 95%
// headroom rule for CPU cores, GPU cores, and storage independently.
func (s *ContractSet) CanAutoAccept(topo *Topology, req *model.ContractRequest) bool {
	capacity := DeclaredCapacityOf(topo)
	active := s.ActiveDemand()

	if float64(active.CPUCores+req.Demand.CPUCores) > AutoAcceptHeadroom*float64(capacity.CPUCores) {
		return false
	}
	if float64(active.GPUCores+req.Demand.GPUCores) > AutoAcceptHeadroom*float64(capacity.GPUCores) {
		return false
	}
	if active.StorageGB+req.Demand.StorageGB > AutoAcceptHeadroom*capacity.StorageGB {
		return false
	}
	return true
}

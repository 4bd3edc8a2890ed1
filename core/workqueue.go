package core

import (
	"sort"
	"sync"

	"github.com/rackworks/datacenter-simulator/model"
)

// PacketState is the single active state of a packet's pipeline:
// pending → downloading → processing → uploading → complete. Store
// packets skip uploading and complete straight out of processing.
type PacketState string

const (
	PacketPending     PacketState = "pending"
	PacketDownloading PacketState = "downloading"
	PacketProcessing  PacketState = "processing"
	PacketUploading   PacketState = "uploading"
	PacketComplete    PacketState = "complete"
)

// progressEpsilon absorbs the rounding shortfall of progress built up
// from many small per-tick increments, so a stage that is due on an
// exact tick boundary completes on that tick.
const progressEpsilon = 1e-9

// Packet is the atomic unit of contract work. Progress fractions are
// monotone within their stage and clamp to 1 at the transition.
type Packet struct {
	ID         int64          `json:"ID"`
	ContractID string         `json:"ContractID"`
	Type       model.WorkType `json:"Type"`

	ComputeTime float64 `json:"ComputeTime"` // seconds on one dedicated core
	InputSize   float64 `json:"InputSize"`   // GB
	OutputSize  float64 `json:"OutputSize"`  // GB

	DownloadProgress   float64 `json:"DownloadProgress"`
	ProcessingProgress float64 `json:"ProcessingProgress"`
	UploadProgress     float64 `json:"UploadProgress"`

	State PacketState `json:"State"`

	// ServerID is the assigned server, empty while pending.
	ServerID string `json:"ServerID,omitempty"`
}

// Assigned reports whether the packet occupies a server slot.
func (p *Packet) Assigned() bool {
	switch p.State {
	case PacketDownloading, PacketProcessing, PacketUploading:
		return true
	}
	return false
}

// WorkQueue owns all live packets in FIFO order and advances their
// state machines using the allocations handed to it each tick. The
// packet-id counter is part of the persistence contract and must
// survive save/load.
type WorkQueue struct {
	mu      sync.RWMutex
	packets []*Packet
	nextID  int64
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{nextID: 1}
}

// AddContractPackets decomposes an accepted contract into its packets
// and appends them to the queue in creation order.
func (q *WorkQueue) AddContractPackets(c *model.Contract) []*Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Packet, 0, c.PacketCount)
	for i := 0; i < c.PacketCount; i++ {
		p := &Packet{
			ID:          q.nextID,
			ContractID:  c.ID,
			Type:        c.Work,
			ComputeTime: c.ComputeTime,
			InputSize:   c.InputSize,
			OutputSize:  c.OutputSize,
			State:       PacketPending,
		}
		q.nextID++
		q.packets = append(q.packets, p)
		out = append(out, p)
	}
	return out
}

// Packets returns the live packets in queue order. The slice is a copy;
// the pointed-to packets are not.
func (q *WorkQueue) Packets() []*Packet {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Packet, len(q.packets))
	copy(out, q.packets)
	return out
}

// PacketsForContract returns the contract's packets in queue order.
func (q *WorkQueue) PacketsForContract(contractID string) []*Packet {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*Packet
	for _, p := range q.packets {
		if p.ContractID == contractID {
			out = append(out, p)
		}
	}
	return out
}

// PurgeContract drops every packet owned by the contract, in bulk.
func (q *WorkQueue) PurgeContract(contractID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.packets[:0]
	removed := 0
	for _, p := range q.packets {
		if p.ContractID == contractID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	q.packets = kept
	return removed
}

// Counter returns the next packet ID, for the external save layer.
func (q *WorkQueue) Counter() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.nextID
}

// Restore replaces the queue contents and counter from persisted state.
func (q *WorkQueue) Restore(packets []*Packet, counter int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = append([]*Packet(nil), packets...)
	if counter > 0 {
		q.nextID = counter
	}
}

// CountsByState tallies live packets per state, for metrics.
func (q *WorkQueue) CountsByState() map[PacketState]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make(map[PacketState]int, 5)
	for _, p := range q.packets {
		out[p.State]++
	}
	return out
}

// TransferringContracts counts distinct contracts with at least one
// packet in a transferring state (downloading or uploading). This is
// the contention figure the bandwidth arbitrator divides by.
func (q *WorkQueue) TransferringContracts() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range q.packets {
		if p.State == PacketDownloading || p.State == PacketUploading {
			seen[p.ContractID] = struct{}{}
		}
	}
	return len(seen)
}

//
// ---------- Admission ----------
//

// Admit moves pending packets onto servers in queue order, first-fit
// and without priorities. A server holds at most cores × 2 concurrently
// assigned packets and must have storage headroom for the packet's
// input on top of what is stored and already in flight. Packets that
// fit nowhere simply stay pending; there is no failure signal.
func (q *WorkQueue) Admit(topo *Topology) {
	servers := topo.NodesByCategory(CategoryServer)

	q.mu.Lock()
	defer q.mu.Unlock()

	assigned := make(map[string]int, len(servers))
	inflight := make(map[string]float64, len(servers))
	for _, p := range q.packets {
		if p.Assigned() {
			assigned[p.ServerID]++
		}
		if p.State == PacketDownloading {
			inflight[p.ServerID] += p.InputSize
		}
	}

	for _, p := range q.packets {
		if p.State != PacketPending {
			continue
		}
		for _, server := range servers {
			if !server.Powered || server.Server == nil {
				continue
			}
			if assigned[server.ID] >= server.Server.Cores*2 {
				continue
			}
			if server.Server.StoredGB+inflight[server.ID]+p.InputSize > server.Server.StorageGB {
				continue
			}
			p.ServerID = server.ID
			p.State = PacketDownloading
			assigned[server.ID]++
			inflight[server.ID] += p.InputSize
			break
		}
	}
}

//
// ---------- Progress ----------
//

// StepDownloads advances download progress. Each server's allotted
// download bandwidth is split evenly across its downloading packets;
// rate returns percent-per-second for a contract's nominal rate.
// Unpowered or missing servers are skipped, which is the only stall
// mechanism: no retries, no timeouts.
func (q *WorkQueue) StepDownloads(topo *Topology, dt float64, rate func(contractID string) float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	byServer := q.groupByServerLocked(PacketDownloading)
	for _, serverID := range sortedKeys(byServer) {
		server := topo.GetNode(serverID)
		if server == nil || !server.Powered || server.Server == nil {
			continue
		}
		packets := byServer[serverID]
		n := float64(len(packets))
		for _, p := range packets {
			shared := rate(p.ContractID) / n
			p.DownloadProgress += dt * shared / 100
			if p.DownloadProgress >= 1-progressEpsilon {
				p.DownloadProgress = 1
				p.State = PacketProcessing
				server.Server.StoredGB += p.InputSize
			}
		}
	}
}

// StepProcessing advances compute progress. A server's cores are split
// evenly across its processing packets; GPU work on a server without
// GPU hardware runs at half the allotted speed. Store packets complete
// here and release their input from storage.
func (q *WorkQueue) StepProcessing(topo *Topology, dt float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	byServer := q.groupByServerLocked(PacketProcessing)
	for _, serverID := range sortedKeys(byServer) {
		server := topo.GetNode(serverID)
		if server == nil || !server.Powered || server.Server == nil {
			continue
		}
		packets := byServer[serverID]
		coresPerPacket := float64(server.Server.Cores) / float64(len(packets))
		for _, p := range packets {
			if p.ComputeTime <= 0 {
				p.ProcessingProgress = 1
			} else {
				speed := coresPerPacket / p.ComputeTime
				if p.Type == model.WorkGPU && server.Server.GPUs == 0 {
					speed /= 2
				}
				p.ProcessingProgress += dt * speed
			}
			if p.ProcessingProgress >= 1-progressEpsilon {
				p.ProcessingProgress = 1
				if p.Type == model.WorkStore {
					p.State = PacketComplete
					server.Server.StoredGB -= p.InputSize
				} else {
					p.State = PacketUploading
					p.UploadProgress = 0
				}
			}
		}
	}
}

// StepUploads advances upload progress; completion releases the output
// size from the server's storage.
func (q *WorkQueue) StepUploads(topo *Topology, dt float64, rate func(contractID string) float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	byServer := q.groupByServerLocked(PacketUploading)
	for _, serverID := range sortedKeys(byServer) {
		server := topo.GetNode(serverID)
		if server == nil || !server.Powered || server.Server == nil {
			continue
		}
		packets := byServer[serverID]
		n := float64(len(packets))
		for _, p := range packets {
			shared := rate(p.ContractID) / n
			p.UploadProgress += dt * shared / 100
			if p.UploadProgress >= 1-progressEpsilon {
				p.UploadProgress = 1
				p.State = PacketComplete
				server.Server.StoredGB -= p.OutputSize
			}
		}
	}
}

// groupByServerLocked buckets packets in one state by server, keeping
// queue order inside each bucket.
//
// NOTE: caller must hold q.mu.
func (q *WorkQueue) groupByServerLocked(state PacketState) map[string][]*Packet {
	out := make(map[string][]*Packet)
	for _, p := range q.packets {
		if p.State == state && p.ServerID != "" {
			out[p.ServerID] = append(out[p.ServerID], p)
		}
	}
	return out
}

func sortedKeys(m map[string][]*Packet) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package state

import (
	"fmt"
	"sort"

	"github.com/rackworks/datacenter-simulator/core"
	"github.com/rackworks/datacenter-simulator/model"
)

// Snapshot is the consistent view the external save/load layer
// serialises. All cross-references are positional indices into the
// Nodes slice rather than live handles, so a loader can rebuild the
// graph without caring about ID allocation.
type Snapshot struct {
	Nodes         []NodeSnapshot       `json:"nodes"`
	Connections   []ConnectionSnapshot `json:"connections"`
	Contracts     []model.Contract     `json:"contracts"`
	Packets       []PacketSnapshot     `json:"packets"`
	PacketCounter int64                `json:"packet_counter"`
	Money         float64              `json:"money"`
}

// NodeSnapshot is a deep value copy of a node plus index-based
// containment references. RackIndex is -1 for free-standing nodes.
type NodeSnapshot struct {
	Node           core.Node `json:"node"`
	RackIndex      int       `json:"rack_index"`
	ContentIndexes []int     `json:"content_indexes,omitempty"`
}

// ConnectionSnapshot references its endpoints by node index.
type ConnectionSnapshot struct {
	Class        core.CableClass `json:"class"`
	AIndex       int             `json:"a_index"`
	BIndex       int             `json:"b_index"`
	RackInternal bool            `json:"rack_internal,omitempty"`
	Auto         bool            `json:"auto,omitempty"`
}

// PacketSnapshot carries the packet's full stage fractions plus the
// assigned server as an index (-1 when unassigned).
type PacketSnapshot struct {
	Packet      core.Packet `json:"packet"`
	ServerIndex int         `json:"server_index"`
}

// Snapshot captures the entire simulation state. Nodes are ordered by
// ID so indices are stable for identical states.
func (s *SimulationContext) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := s.engine.Topo.Nodes()
	indexOf := make(map[string]int, len(nodes))
	for i, n := range nodes {
		indexOf[n.ID] = i
	}

	snap := &Snapshot{
		PacketCounter: s.engine.Queue.Counter(),
		Money:         s.money,
	}

	for _, n := range nodes {
		ns := NodeSnapshot{Node: copyNode(n), RackIndex: -1}
		if idx, ok := indexOf[n.RackID]; ok {
			ns.RackIndex = idx
		}
		if n.Rack != nil {
			for _, contentID := range n.Rack.Contents {
				if idx, ok := indexOf[contentID]; ok {
					ns.ContentIndexes = append(ns.ContentIndexes, idx)
				}
			}
			sort.Ints(ns.ContentIndexes)
		}
		snap.Nodes = append(snap.Nodes, ns)
	}

	for _, c := range s.engine.Topo.Connections() {
		aIdx, aOK := indexOf[c.NodeA]
		bIdx, bOK := indexOf[c.NodeB]
		if !aOK || !bOK {
			continue
		}
		snap.Connections = append(snap.Connections, ConnectionSnapshot{
			Class:        c.Class,
			AIndex:       aIdx,
			BIndex:       bIdx,
			RackInternal: c.RackInternal,
			Auto:         c.Auto,
		})
	}

	for _, c := range s.engine.Contracts.All() {
		snap.Contracts = append(snap.Contracts, *c)
	}

	for _, p := range s.engine.Queue.Packets() {
		ps := PacketSnapshot{Packet: *p, ServerIndex: -1}
		if idx, ok := indexOf[p.ServerID]; ok {
			ps.ServerIndex = idx
		}
		snap.Packets = append(snap.Packets, ps)
	}

	return snap
}

// Restore rebuilds the simulation from a snapshot, replacing whatever
// state the context held. References are resolved purely through the
// snapshot's positional indices.
func (s *SimulationContext) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	engine := core.NewEngine()
	wireCableCosts(engine, s.catalog)

	idOf := func(idx int) string {
		if idx < 0 || idx >= len(snap.Nodes) {
			return ""
		}
		return snap.Nodes[idx].Node.ID
	}

	for i := range snap.Nodes {
		node := copyNode(&snap.Nodes[i].Node)
		node.RackID = idOf(snap.Nodes[i].RackIndex)
		if node.Rack != nil {
			node.Rack.Contents = nil
			for _, idx := range snap.Nodes[i].ContentIndexes {
				if id := idOf(idx); id != "" {
					node.Rack.Contents = append(node.Rack.Contents, id)
				}
			}
		}
		if err := engine.Topo.AddNode(&node); err != nil {
			return fmt.Errorf("restore node %d: %w", i, err)
		}
	}

	for i, cs := range snap.Connections {
		conn := &core.Connection{
			NodeA:        idOf(cs.AIndex),
			NodeB:        idOf(cs.BIndex),
			Class:        cs.Class,
			RackInternal: cs.RackInternal,
			Auto:         cs.Auto,
		}
		if err := engine.Topo.AddConnection(conn); err != nil {
			return fmt.Errorf("restore connection %d: %w", i, err)
		}
	}

	for i := range snap.Contracts {
		c := snap.Contracts[i]
		if err := engine.Contracts.Add(&c); err != nil {
			return fmt.Errorf("restore contract %d: %w", i, err)
		}
	}

	packets := make([]*core.Packet, 0, len(snap.Packets))
	for i := range snap.Packets {
		p := snap.Packets[i].Packet
		p.ServerID = idOf(snap.Packets[i].ServerIndex)
		packets = append(packets, &p)
	}
	engine.Queue.Restore(packets, snap.PacketCounter)

	s.engine = engine
	s.money = snap.Money
	s.updateStructuralMetrics()
	return nil
}

// copyNode deep-copies a node so snapshots never alias live payloads.
func copyNode(n *core.Node) core.Node {
	out := *n
	if n.Power != nil {
		p := *n.Power
		out.Power = &p
	}
	if n.Server != nil {
		sv := *n.Server
		out.Server = &sv
	}
	if n.Net != nil {
		nd := *n.Net
		out.Net = &nd
	}
	if n.Rack != nil {
		r := *n.Rack
		r.Contents = append([]string(nil), n.Rack.Contents...)
		out.Rack = &r
	}
	if n.Expansion != nil {
		e := *n.Expansion
		out.Expansion = &e
	}
	return out
}

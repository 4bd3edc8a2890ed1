package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNodeExists       = errors.New("node already exists")
	ErrNodeNotFound     = errors.New("node not found")
	ErrNodeBadInput     = errors.New("invalid node")
	ErrConnExists       = errors.New("connection already exists")
	ErrConnNotFound     = errors.New("connection not found")
	ErrConnBadInput     = errors.New("invalid connection")
	ErrRackFull         = errors.New("rack is at capacity")
	ErrNotARack         = errors.New("node is not a rack")
	ErrAlreadyInRack    = errors.New("node is already rack-mounted")
	ErrNotRackMountable = errors.New("node cannot be rack-mounted")
)

// Topology owns the equipment graph: nodes, racks, and connections. It
// answers structural queries only; power and scheduling logic live in
// the resolvers that walk it each tick.
//
// NOTE: the store is concurrency-safe via an internal RWMutex so the
// HTTP surface can read while the engine advances, as long as all
// access goes through these methods.
type Topology struct {
	mu sync.RWMutex

	nodes       map[string]*Node
	conns       map[string]*Connection
	connsByNode map[string]map[string]*Connection
}

// NewTopology creates an empty equipment graph.
func NewTopology() *Topology {
	return &Topology{
		nodes:       make(map[string]*Node),
		conns:       make(map[string]*Connection),
		connsByNode: make(map[string]map[string]*Connection),
	}
}

//
// ---------- Nodes ----------
//

func (t *Topology) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w", ErrNodeBadInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %q", ErrNodeExists, n.ID)
	}
	t.nodes[n.ID] = n
	return nil
}

// GetNode returns a node by ID, or nil if not found.
func (t *Topology) GetNode(id string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

// Nodes returns all nodes sorted by ID. The sort keeps every resolver
// pass deterministic regardless of map iteration order.
func (t *Topology) Nodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodesLocked()
}

func (t *Topology) nodesLocked() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodesByCategory returns all nodes of one category, sorted by ID.
func (t *Topology) NodesByCategory(cat NodeCategory) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Node
	for _, n := range t.nodes {
		if n.Cat == cat {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteNode removes a node, its connections, and its rack membership.
// Deleting a rack detaches every content node first (cascading
// detachment); the contents themselves survive as free-standing nodes.
func (t *Topology) DeleteNode(id string) error {
	if id == "" {
		return fmt.Errorf("%w", ErrNodeBadInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}

	if n.Cat == CategoryRack && n.Rack != nil {
		for _, contentID := range n.Rack.Contents {
			if content := t.nodes[contentID]; content != nil {
				content.RackID = ""
			}
		}
		n.Rack.Contents = nil
	}

	if n.RackID != "" {
		t.detachFromRackLocked(n)
	}

	for connID, conn := range t.conns {
		if conn.NodeA == id || conn.NodeB == id {
			t.removeConnLocked(connID)
		}
	}

	delete(t.connsByNode, id)
	delete(t.nodes, id)
	return nil
}

//
// ---------- Rack containment ----------
//

// PlaceInRack mounts a node into a rack, enforcing the rack's unit
// capacity, and auto-wires the rack-internal power edge so the renderer
// sees the cabling. Rack-internal edges are skipped by the power
// resolver.
func (t *Topology) PlaceInRack(nodeID, rackID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	rack, ok := t.nodes[rackID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, rackID)
	}
	if rack.Cat != CategoryRack || rack.Rack == nil {
		return fmt.Errorf("%w: %q", ErrNotARack, rackID)
	}
	if n.RackID != "" {
		return fmt.Errorf("%w: %q in %q", ErrAlreadyInRack, nodeID, n.RackID)
	}
	if n.Cat == CategoryRack || n.Cat == CategoryPSU || n.Cat == CategoryDistributor {
		return fmt.Errorf("%w: %q (%s)", ErrNotRackMountable, nodeID, n.Cat)
	}
	if len(rack.Rack.Contents) >= rack.Rack.Capacity {
		return fmt.Errorf("%w: %q (%d/%d)", ErrRackFull, rackID, len(rack.Rack.Contents), rack.Rack.Capacity)
	}

	n.RackID = rackID
	rack.Rack.Contents = append(rack.Rack.Contents, nodeID)

	internal := &Connection{
		ID:           ConnectionID(rackID, nodeID, CablePower),
		NodeA:        rackID,
		NodeB:        nodeID,
		Class:        CablePower,
		RackInternal: true,
		Auto:         true,
	}
	if _, exists := t.conns[internal.ID]; !exists {
		t.insertConnLocked(internal)
	}
	return nil
}

// DetachFromRack removes a node from its containing rack and deletes
// the auto-wired internal edges.
func (t *Topology) DetachFromRack(nodeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	if n.RackID == "" {
		return nil
	}
	t.detachFromRackLocked(n)
	return nil
}

// detachFromRackLocked clears the back-reference, the rack's contents
// entry, and any rack-internal edges between the two.
//
// NOTE: caller must hold t.mu (write lock).
func (t *Topology) detachFromRackLocked(n *Node) {
	rack := t.nodes[n.RackID]
	if rack != nil && rack.Rack != nil {
		kept := rack.Rack.Contents[:0]
		for _, id := range rack.Rack.Contents {
			if id != n.ID {
				kept = append(kept, id)
			}
		}
		rack.Rack.Contents = kept
	}
	for connID, conn := range t.conns {
		if !conn.RackInternal {
			continue
		}
		if (conn.NodeA == n.ID && conn.NodeB == n.RackID) || (conn.NodeB == n.ID && conn.NodeA == n.RackID) {
			t.removeConnLocked(connID)
		}
	}
	n.RackID = ""
}

// RackOf returns the rack containing nodeID, or nil when free-standing.
func (t *Topology) RackOf(nodeID string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.nodes[nodeID]
	if n == nil || n.RackID == "" {
		return nil
	}
	return t.nodes[n.RackID]
}

// RackUsage returns used and maximum unit capacity for a rack. A
// missing or non-rack node reports 0/0.
func (t *Topology) RackUsage(rackID string) (used, max int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rack := t.nodes[rackID]
	if rack == nil || rack.Cat != CategoryRack || rack.Rack == nil {
		return 0, 0
	}
	return len(rack.Rack.Contents), rack.Rack.Capacity
}

// RackContents returns the contained nodes of a rack, sorted by ID.
func (t *Topology) RackContents(rackID string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rackContentsLocked(rackID)
}

func (t *Topology) rackContentsLocked(rackID string) []*Node {
	rack := t.nodes[rackID]
	if rack == nil || rack.Rack == nil {
		return nil
	}
	out := make([]*Node, 0, len(rack.Rack.Contents))
	for _, id := range rack.Rack.Contents {
		if n := t.nodes[id]; n != nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

//
// ---------- Connections ----------
//

// AddConnection inserts an edge and updates adjacency. Admission rules
// (port counts, class legality) are the validator's job; callers are
// expected to gate through ValidateConnection first.
func (t *Topology) AddConnection(c *Connection) error {
	if c == nil || c.NodeA == "" || c.NodeB == "" || c.NodeA == c.NodeB {
		return fmt.Errorf("%w", ErrConnBadInput)
	}
	if c.ID == "" {
		c.ID = ConnectionID(c.NodeA, c.NodeB, c.Class)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.conns[c.ID]; exists {
		return fmt.Errorf("%w: %q", ErrConnExists, c.ID)
	}
	if _, ok := t.nodes[c.NodeA]; !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, c.NodeA)
	}
	if _, ok := t.nodes[c.NodeB]; !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, c.NodeB)
	}

	t.insertConnLocked(c)
	return nil
}

// DeleteConnection removes an edge by ID and cleans up adjacency.
func (t *Topology) DeleteConnection(id string) error {
	if id == "" {
		return fmt.Errorf("%w", ErrConnBadInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.conns[id]; !exists {
		return fmt.Errorf("%w: %q", ErrConnNotFound, id)
	}
	t.removeConnLocked(id)
	return nil
}

// GetConnection returns a connection by ID, or nil if missing.
func (t *Topology) GetConnection(id string) *Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conns[id]
}

// Connections returns all edges sorted by ID.
func (t *Topology) Connections() []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnectionsFor returns all edges touching a node, optionally filtered
// by cable class ("" means any), sorted by ID.
func (t *Topology) ConnectionsFor(nodeID string, class CableClass) []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connectionsForLocked(nodeID, class)
}

func (t *Topology) connectionsForLocked(nodeID string, class CableClass) []*Connection {
	m := t.connsByNode[nodeID]
	if m == nil {
		return nil
	}
	out := make([]*Connection, 0, len(m))
	for _, c := range m {
		if class != "" && c.Class != class {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Neighbors returns the nodes adjacent to nodeID via edges of the given
// class ("" means any class), sorted by ID.
func (t *Topology) Neighbors(nodeID string, class CableClass) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []*Node
	for _, c := range t.connectionsForLocked(nodeID, class) {
		otherID := c.Other(nodeID)
		if otherID == "" {
			continue
		}
		if _, dup := seen[otherID]; dup {
			continue
		}
		seen[otherID] = struct{}{}
		if other := t.nodes[otherID]; other != nil {
			out = append(out, other)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NetworkPortBudget returns the node's effective network port ceiling.
// For racks this is the summed port count of contained switches and
// routers; everything else uses its own budget.
func (t *Topology) NetworkPortBudget(nodeID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.nodes[nodeID]
	if n == nil {
		return 0
	}
	if n.Cat != CategoryRack {
		return n.PortBudget()
	}
	budget := 0
	for _, content := range t.rackContentsLocked(nodeID) {
		if content.Cat == CategorySwitch || content.Cat == CategoryRouter {
			budget += content.PortBudget()
		}
	}
	return budget
}

// NetworkPortsInUse counts non-internal network-class edges on a node.
func (t *Topology) NetworkPortsInUse(nodeID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	used := 0
	for _, c := range t.connsByNode[nodeID] {
		if c.Class.IsNetwork() && !c.RackInternal {
			used++
		}
	}
	return used
}

// Clear removes all nodes and connections.
func (t *Topology) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodes = make(map[string]*Node)
	t.conns = make(map[string]*Connection)
	t.connsByNode = make(map[string]map[string]*Connection)
}

// insertConnLocked updates the edge map and both adjacency entries.
//
// NOTE: caller must hold t.mu (write lock).
func (t *Topology) insertConnLocked(c *Connection) {
	t.conns[c.ID] = c
	for _, nodeID := range []string{c.NodeA, c.NodeB} {
		m, ok := t.connsByNode[nodeID]
		if !ok {
			m = make(map[string]*Connection)
			t.connsByNode[nodeID] = m
		}
		m[c.ID] = c
	}
}

// removeConnLocked removes the edge and its adjacency entries.
//
// NOTE: caller must hold t.mu (write lock).
func (t *Topology) removeConnLocked(id string) {
	c, ok := t.conns[id]
	if !ok {
		return
	}
	for _, nodeID := range []string{c.NodeA, c.NodeB} {
		if m, ok := t.connsByNode[nodeID]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(t.connsByNode, nodeID)
			}
		}
	}
	delete(t.conns, id)
}

package core

// NodeCategory is the closed set of equipment kinds the simulation
// understands. Dispatch over categories is always an exhaustive switch;
// there is no default fallback behaviour.
type NodeCategory string

const (
	CategoryRack        NodeCategory = "rack"
	CategoryServer      NodeCategory = "server"
	CategorySwitch      NodeCategory = "switch"
	CategoryRouter      NodeCategory = "router"
	CategoryModem       NodeCategory = "modem"
	CategoryPSU         NodeCategory = "psu"
	CategoryDistributor NodeCategory = "power_distributor"
	CategoryExpansion   NodeCategory = "expansion"
)

// PowerState is the source-side bookkeeping for PSUs and power
// distributors. Used is rewritten from scratch on every resolver pass.
type PowerState struct {
	CapacityWatts float64 `json:"CapacityWatts"`
	UsedWatts     float64 `json:"UsedWatts"`
}

// Overcommitted reports whether booked demand exceeds capacity. The
// resolver never throttles on overcommit; this only feeds the warning
// overlay and the overcommit gauge.
func (p *PowerState) Overcommitted() bool {
	return p != nil && p.UsedWatts > p.CapacityWatts
}

// ServerState is the per-server payload: compute and storage capacity
// plus the running stored-bytes counter maintained by the work queue.
type ServerState struct {
	Cores        int     `json:"Cores"`
	GPUs         int     `json:"GPUs"`
	StorageGB    float64 `json:"StorageGB"`
	DownlinkMbps float64 `json:"DownlinkMbps"`
	Ports        int     `json:"Ports"`

	// StoredGB tracks data currently held on the server. Download
	// completion adds the packet's input size; store completion
	// releases the input, upload completion releases the output.
	StoredGB float64 `json:"StoredGB"`
}

// NetDeviceState is the payload shared by switches, routers and modems.
type NetDeviceState struct {
	CapacityMbps float64 `json:"CapacityMbps"`
	Ports        int     `json:"Ports"`
}

// RackState is the payload for racks: a unit capacity and the owned
// list of contained node IDs. Containment back-references on the
// contents are non-owning handles (plain IDs).
type RackState struct {
	Capacity int      `json:"Capacity"`
	Contents []string `json:"Contents,omitempty"`
}

// ExpansionState is the payload for expansion cards placed inside a
// rack next to a server. A fiber card unlocks fiber uplinks for the
// servers in its rack; a non-zero DownlinkMbps overrides the server's
// built-in downlink.
type ExpansionState struct {
	FiberUplink  bool    `json:"FiberUplink"`
	DownlinkMbps float64 `json:"DownlinkMbps"`
}

// Node is a piece of equipment in the topology. Exactly one payload
// pointer is non-nil, matching Category.
type Node struct {
	ID     string       `json:"ID"`
	SpecID string       `json:"SpecID"`
	Name   string       `json:"Name"`
	Cat    NodeCategory `json:"Category"`

	// Powered is derived state, fully recomputed by the power
	// resolver every tick. Never carried over.
	Powered bool `json:"Powered"`

	// DrawWatts is what the node pulls when powered. Zero for
	// racks and PSUs.
	DrawWatts float64 `json:"DrawWatts"`

	Power     *PowerState     `json:"Power,omitempty"`     // psu, power_distributor
	Server    *ServerState    `json:"Server,omitempty"`    // server
	Net       *NetDeviceState `json:"Net,omitempty"`       // switch, router, modem
	Rack      *RackState      `json:"Rack,omitempty"`      // rack
	Expansion *ExpansionState `json:"Expansion,omitempty"` // expansion

	// RackID is the non-owning back-reference to the containing
	// rack, empty when free-standing.
	RackID string `json:"RackID,omitempty"`
}

// DrawsPower reports whether the node is a power consumer the resolver
// should reset and mark each pass. Racks aggregate their contents,
// PSUs are sources, and distributors only fan power out, so none of
// those draws on its own behalf.
func (n *Node) DrawsPower() bool {
	switch n.Cat {
	case CategoryServer, CategorySwitch, CategoryRouter, CategoryModem, CategoryExpansion:
		return true
	case CategoryRack, CategoryPSU, CategoryDistributor:
		return false
	}
	return false
}

// PortBudget returns the node's own network port ceiling. Racks have no
// ports of their own; their budget comes from contained switches and
// routers (see Topology.NetworkPortBudget).
func (n *Node) PortBudget() int {
	switch n.Cat {
	case CategoryServer:
		if n.Server != nil {
			return n.Server.Ports
		}
	case CategorySwitch, CategoryRouter, CategoryModem:
		if n.Net != nil {
			return n.Net.Ports
		}
	case CategoryRack, CategoryPSU, CategoryDistributor, CategoryExpansion:
		return 0
	}
	return 0
}

package core

import (
	"fmt"
	"sort"
)

// CableClass describes the physical cable joining two nodes. Power
// classes carry a nominal wattage (20W for power, 100W for high
// voltage) defined in the cable catalog.
type CableClass string

const (
	CableEthernet    CableClass = "ethernet"
	CableFiber       CableClass = "fiber"
	CablePower       CableClass = "power"
	CableHighVoltage CableClass = "high_voltage"
)

// IsNetwork reports whether the class carries data rather than power.
func (c CableClass) IsNetwork() bool {
	return c == CableEthernet || c == CableFiber
}

// IsPower reports whether the class carries electricity.
func (c CableClass) IsPower() bool {
	return c == CablePower || c == CableHighVoltage
}

// Connection is an unordered edge between two nodes. IDs are
// deterministic over the endpoint pair and class so the same edge can
// never be inserted twice.
type Connection struct {
	ID    string     `json:"ID"`
	NodeA string     `json:"NodeA"`
	NodeB string     `json:"NodeB"`
	Class CableClass `json:"Class"`

	// RackInternal connections are auto-wired by rack placement and
	// invisible to the power resolver.
	RackInternal bool `json:"RackInternal,omitempty"`
	// Auto marks edges created by the simulator rather than the user.
	Auto bool `json:"Auto,omitempty"`
}

// ConnectionID builds the symmetric edge identifier for a node pair and
// class, so A–B and B–A address the same connection.
func ConnectionID(a, b string, class CableClass) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("conn-%s-%s-%s", class, ids[0], ids[1])
}

// Other returns the endpoint opposite to nodeID, or "" when nodeID is
// not part of the connection.
func (c *Connection) Other(nodeID string) string {
	switch nodeID {
	case c.NodeA:
		return c.NodeB
	case c.NodeB:
		return c.NodeA
	}
	return ""
}

package core

import (
	"errors"
	"fmt"
)

var (
	ErrPowerToPSU          = errors.New("power cable may not feed a PSU")
	ErrPSUNeedsHighVoltage = errors.New("PSU to distributor requires a high-voltage cable")
	ErrHighVoltageEndpoint = errors.New("high-voltage cable only joins PSUs and distributors")
	ErrPortsExhausted      = errors.New("no free network ports")
	ErrFiberNeedsExpansion = errors.New("fiber uplink requires a fiber expansion in the server's rack")
	ErrModemToSwitch       = errors.New("modem may not connect to a switch directly")
	ErrRouterToRouter      = errors.New("routers may not connect to each other")
	ErrRackNeedsNetDevice  = errors.New("rack has no switch or router to terminate the cable")
	ErrUnknownCableClass   = errors.New("unknown cable class")
)

// ValidateConnection is the admission gate for a proposed edge. It is
// invoked before an edge is persisted; a rejection leaves the topology
// untouched. Only class legality and port counts are checked here —
// throughput is resolved later by the bandwidth arbitrator.
func ValidateConnection(t *Topology, a, b *Node, class CableClass) error {
	if t == nil || a == nil || b == nil {
		return fmt.Errorf("%w: missing endpoint", ErrConnBadInput)
	}
	if a.ID == b.ID {
		return fmt.Errorf("%w: self-connection on %q", ErrConnBadInput, a.ID)
	}

	switch class {
	case CablePower:
		return validatePowerCable(a, b)
	case CableHighVoltage:
		return validateHighVoltageCable(a, b)
	case CableEthernet, CableFiber:
		return validateNetworkCable(t, a, b, class)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCableClass, class)
}

// validatePowerCable enforces the 20W-class rules: a PSU is never the
// consumer of a power cable (PSU–PSU is meaningless, PSU–distributor
// must use high voltage); any other source/device pairing — direct PSU,
// distributor, or rack feeding a device — is legal.
func validatePowerCable(a, b *Node) error {
	if a.Cat == CategoryPSU && b.Cat == CategoryPSU {
		return fmt.Errorf("%w: %q and %q", ErrPowerToPSU, a.ID, b.ID)
	}
	if (a.Cat == CategoryPSU && b.Cat == CategoryDistributor) ||
		(b.Cat == CategoryPSU && a.Cat == CategoryDistributor) {
		return fmt.Errorf("%w: %q-%q", ErrPSUNeedsHighVoltage, a.ID, b.ID)
	}
	return nil
}

// validateHighVoltageCable enforces the 100W-class rule: PSU to
// distributor (either direction) or distributor to distributor only.
func validateHighVoltageCable(a, b *Node) error {
	psuDist := (a.Cat == CategoryPSU && b.Cat == CategoryDistributor) ||
		(b.Cat == CategoryPSU && a.Cat == CategoryDistributor)
	distDist := a.Cat == CategoryDistributor && b.Cat == CategoryDistributor
	if !psuDist && !distDist {
		return fmt.Errorf("%w: %s-%s", ErrHighVoltageEndpoint, a.Cat, b.Cat)
	}
	return nil
}

func validateNetworkCable(t *Topology, a, b *Node, class CableClass) error {
	if (a.Cat == CategoryModem && b.Cat == CategorySwitch) ||
		(b.Cat == CategoryModem && a.Cat == CategorySwitch) {
		return fmt.Errorf("%w: %q-%q", ErrModemToSwitch, a.ID, b.ID)
	}
	if a.Cat == CategoryRouter && b.Cat == CategoryRouter {
		return fmt.Errorf("%w: %q-%q", ErrRouterToRouter, a.ID, b.ID)
	}

	for _, n := range []*Node{a, b} {
		if n.Cat == CategoryRack && !rackHasNetDevice(t, n.ID) {
			return fmt.Errorf("%w: %q", ErrRackNeedsNetDevice, n.ID)
		}
		if used, budget := t.NetworkPortsInUse(n.ID), t.NetworkPortBudget(n.ID); used >= budget {
			return fmt.Errorf("%w: %q (%d/%d)", ErrPortsExhausted, n.ID, used, budget)
		}
	}

	if class == CableFiber {
		for _, n := range []*Node{a, b} {
			if n.Cat == CategoryServer && !serverHasFiberExpansion(t, n) {
				return fmt.Errorf("%w: %q", ErrFiberNeedsExpansion, n.ID)
			}
		}
	}
	return nil
}

func rackHasNetDevice(t *Topology, rackID string) bool {
	for _, n := range t.RackContents(rackID) {
		if n.Cat == CategorySwitch || n.Cat == CategoryRouter {
			return true
		}
	}
	return false
}

func serverHasFiberExpansion(t *Topology, server *Node) bool {
	if server.RackID == "" {
		return false
	}
	for _, n := range t.RackContents(server.RackID) {
		if n.Cat == CategoryExpansion && n.Expansion != nil && n.Expansion.FiberUplink {
			return true
		}
	}
	return false
}

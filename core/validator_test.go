package core

import (
	"errors"
	"testing"
)

func TestValidatePowerCables(t *testing.T) {
	topo := NewTopology()
	psu1 := newPSUNode("psu1", 100)
	psu2 := newPSUNode("psu2", 100)
	dist := newDistributorNode("dist1", 200)
	srv := newServerNode("srv1", 4, 100, 1000)
	rack := newRackNode("rack1", 4)
	mustAdd(t, topo, psu1, psu2, dist, srv, rack)

	if err := ValidateConnection(topo, psu1, srv, CablePower); err != nil {
		t.Fatalf("psu-server power cable should be legal, got %v", err)
	}
	if err := ValidateConnection(topo, psu1, rack, CablePower); err != nil {
		t.Fatalf("psu-rack power cable should be legal, got %v", err)
	}
	if err := ValidateConnection(topo, dist, srv, CablePower); err != nil {
		t.Fatalf("distributor-server power cable should be legal, got %v", err)
	}
	if err := ValidateConnection(topo, psu1, psu2, CablePower); !errors.Is(err, ErrPowerToPSU) {
		t.Fatalf("psu-psu: expected ErrPowerToPSU, got %v", err)
	}
	if err := ValidateConnection(topo, psu1, dist, CablePower); !errors.Is(err, ErrPSUNeedsHighVoltage) {
		t.Fatalf("psu-distributor power: expected ErrPSUNeedsHighVoltage, got %v", err)
	}
}

func TestValidateHighVoltageCables(t *testing.T) {
	topo := NewTopology()
	psu := newPSUNode("psu1", 100)
	dist1 := newDistributorNode("dist1", 200)
	dist2 := newDistributorNode("dist2", 200)
	srv := newServerNode("srv1", 4, 100, 1000)
	mustAdd(t, topo, psu, dist1, dist2, srv)

	if err := ValidateConnection(topo, psu, dist1, CableHighVoltage); err != nil {
		t.Fatalf("psu-distributor high voltage should be legal, got %v", err)
	}
	if err := ValidateConnection(topo, dist1, dist2, CableHighVoltage); err != nil {
		t.Fatalf("distributor-distributor high voltage should be legal, got %v", err)
	}
	if err := ValidateConnection(topo, psu, srv, CableHighVoltage); !errors.Is(err, ErrHighVoltageEndpoint) {
		t.Fatalf("psu-server high voltage: expected ErrHighVoltageEndpoint, got %v", err)
	}
}

func TestValidateNetworkCableDeviceRules(t *testing.T) {
	topo := NewTopology()
	modem := newModemNode("modem1", 1000, 2)
	sw := newSwitchNode("sw1", 1000, 8)
	rt1 := &Node{ID: "rt1", Cat: CategoryRouter, Net: &NetDeviceState{CapacityMbps: 1000, Ports: 4}}
	rt2 := &Node{ID: "rt2", Cat: CategoryRouter, Net: &NetDeviceState{CapacityMbps: 1000, Ports: 4}}
	mustAdd(t, topo, modem, sw, rt1, rt2)

	if err := ValidateConnection(topo, modem, sw, CableEthernet); !errors.Is(err, ErrModemToSwitch) {
		t.Fatalf("modem-switch: expected ErrModemToSwitch, got %v", err)
	}
	if err := ValidateConnection(topo, rt1, rt2, CableEthernet); !errors.Is(err, ErrRouterToRouter) {
		t.Fatalf("router-router: expected ErrRouterToRouter, got %v", err)
	}
	if err := ValidateConnection(topo, modem, rt1, CableEthernet); err != nil {
		t.Fatalf("modem-router should be legal, got %v", err)
	}
	if err := ValidateConnection(topo, sw, rt1, CableEthernet); err != nil {
		t.Fatalf("switch-router should be legal, got %v", err)
	}
}

func TestValidateRackNeedsNetworkDevice(t *testing.T) {
	topo := NewTopology()
	rack := newRackNode("rack1", 4)
	modem := newModemNode("modem1", 1000, 2)
	sw := newSwitchNode("sw1", 1000, 8)
	mustAdd(t, topo, rack, modem, sw)

	if err := ValidateConnection(topo, modem, rack, CableEthernet); !errors.Is(err, ErrRackNeedsNetDevice) {
		t.Fatalf("empty rack: expected ErrRackNeedsNetDevice, got %v", err)
	}

	if err := topo.PlaceInRack("sw1", "rack1"); err != nil {
		t.Fatalf("PlaceInRack error: %v", err)
	}
	if err := ValidateConnection(topo, modem, rack, CableEthernet); err != nil {
		t.Fatalf("rack with switch should accept ethernet, got %v", err)
	}
}

func TestValidatePortExhaustion(t *testing.T) {
	topo := NewTopology()
	sw := newSwitchNode("sw1", 1000, 1)
	srv1 := newServerNode("srv1", 4, 100, 1000)
	srv2 := newServerNode("srv2", 4, 100, 1000)
	mustAdd(t, topo, sw, srv1, srv2)

	if err := ValidateConnection(topo, sw, srv1, CableEthernet); err != nil {
		t.Fatalf("first cable should fit, got %v", err)
	}
	connect(t, topo, "sw1", "srv1", CableEthernet)

	// The switch's single port is now occupied.
	if err := ValidateConnection(topo, sw, srv2, CableEthernet); !errors.Is(err, ErrPortsExhausted) {
		t.Fatalf("expected ErrPortsExhausted, got %v", err)
	}
}

func TestValidateFiberNeedsExpansion(t *testing.T) {
	topo := NewTopology()
	modem := newModemNode("modem1", 10000, 2)
	rack := newRackNode("rack1", 4)
	srv := newServerNode("srv1", 4, 100, 1000)
	exp := &Node{ID: "exp1", Cat: CategoryExpansion, Expansion: &ExpansionState{FiberUplink: true, DownlinkMbps: 5000}}
	mustAdd(t, topo, modem, rack, srv, exp)

	// Free-standing server: no expansion reachable.
	if err := ValidateConnection(topo, modem, srv, CableFiber); !errors.Is(err, ErrFiberNeedsExpansion) {
		t.Fatalf("expected ErrFiberNeedsExpansion, got %v", err)
	}

	if err := topo.PlaceInRack("srv1", "rack1"); err != nil {
		t.Fatalf("PlaceInRack error: %v", err)
	}
	if err := ValidateConnection(topo, modem, srv, CableFiber); !errors.Is(err, ErrFiberNeedsExpansion) {
		t.Fatalf("rack without fiber expansion: expected ErrFiberNeedsExpansion, got %v", err)
	}

	if err := topo.PlaceInRack("exp1", "rack1"); err != nil {
		t.Fatalf("PlaceInRack error: %v", err)
	}
	if err := ValidateConnection(topo, modem, srv, CableFiber); err != nil {
		t.Fatalf("fiber with expansion in rack should be legal, got %v", err)
	}
}

func TestValidateRejectsSelfAndUnknownClass(t *testing.T) {
	topo := NewTopology()
	srv := newServerNode("srv1", 4, 100, 1000)
	modem := newModemNode("modem1", 1000, 2)
	mustAdd(t, topo, srv, modem)

	if err := ValidateConnection(topo, srv, srv, CableEthernet); !errors.Is(err, ErrConnBadInput) {
		t.Fatalf("self-connection: expected ErrConnBadInput, got %v", err)
	}
	if err := ValidateConnection(topo, modem, srv, CableClass("coax")); !errors.Is(err, ErrUnknownCableClass) {
		t.Fatalf("unknown class: expected ErrUnknownCableClass, got %v", err)
	}
}

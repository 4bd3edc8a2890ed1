package core

import (
	"math"
	"testing"
)

func connect(t *testing.T, topo *Topology, a, b string, class CableClass) {
	t.Helper()
	if err := topo.AddConnection(&Connection{NodeA: a, NodeB: b, Class: class}); err != nil {
		t.Fatalf("AddConnection %s-%s error: %v", a, b, err)
	}
}

func TestPowerDirectPSUSumsDemand(t *testing.T) {
	topo := NewTopology()
	psu := newPSUNode("psu1", 100)
	srvA := newServerNode("srvA", 4, 100, 1000)
	srvA.DrawWatts = 20
	srvB := newServerNode("srvB", 4, 100, 1000)
	srvB.DrawWatts = 5
	mustAdd(t, topo, psu, srvA, srvB)
	connect(t, topo, "psu1", "srvA", CablePower)
	connect(t, topo, "psu1", "srvB", CablePower)

	NewPowerResolver(topo).Resolve()

	if got := psu.Power.UsedWatts; got != 25 {
		t.Fatalf("PSU UsedWatts = %v, want 25", got)
	}
	if !srvA.Powered || !srvB.Powered {
		t.Fatalf("expected both servers powered, got %v/%v", srvA.Powered, srvB.Powered)
	}
	if psu.Power.Overcommitted() {
		t.Fatalf("25W on a 100W PSU must not be overcommitted")
	}
}

func TestPowerProportionalSplitAcrossPSUs(t *testing.T) {
	topo := NewTopology()
	psu1 := newPSUNode("psu1", 10)
	psu2 := newPSUNode("psu2", 30)
	dist := newDistributorNode("dist1", 100)
	srv := newServerNode("srv1", 4, 100, 1000)
	srv.DrawWatts = 40
	mustAdd(t, topo, psu1, psu2, dist, srv)
	connect(t, topo, "psu1", "dist1", CableHighVoltage)
	connect(t, topo, "psu2", "dist1", CableHighVoltage)
	connect(t, topo, "dist1", "srv1", CablePower)

	NewPowerResolver(topo).Resolve()

	// Capacity-weighted split: 10/(10+30) and 30/(10+30) of 40W.
	if got := psu1.Power.UsedWatts; math.Abs(got-10) > 1e-9 {
		t.Fatalf("psu1 UsedWatts = %v, want 10", got)
	}
	if got := psu2.Power.UsedWatts; math.Abs(got-30) > 1e-9 {
		t.Fatalf("psu2 UsedWatts = %v, want 30", got)
	}
	// The distributor books the whole demand passing through it.
	if got := dist.Power.UsedWatts; got != 40 {
		t.Fatalf("distributor UsedWatts = %v, want 40", got)
	}
	if !srv.Powered || !dist.Powered {
		t.Fatalf("expected server and distributor powered")
	}
}

func TestPowerSharesSumToDemand(t *testing.T) {
	cases := []struct {
		name       string
		capacities []float64
		demand     float64
	}{
		{"uneven", []float64{10, 30, 60}, 73},
		{"equal", []float64{50, 50}, 99.5},
		{"single", []float64{1}, 7},
		{"zero capacity", []float64{0, 0}, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			psus := make([]*Node, len(tc.capacities))
			for i, c := range tc.capacities {
				psus[i] = newPSUNode("p", c)
			}
			shares := computeShares(tc.demand, psus)
			sum := 0.0
			for _, s := range shares {
				sum += s
			}
			if math.Abs(sum-tc.demand) > 1e-9 {
				t.Fatalf("shares sum to %v, want %v", sum, tc.demand)
			}
		})
	}
}

func TestPowerZeroCapacityFallsOnFirstPSU(t *testing.T) {
	topo := NewTopology()
	psu1 := newPSUNode("psu1", 0)
	psu2 := newPSUNode("psu2", 0)
	dist := newDistributorNode("dist1", 0)
	srv := newServerNode("srv1", 4, 100, 1000)
	srv.DrawWatts = 40
	mustAdd(t, topo, psu1, psu2, dist, srv)
	connect(t, topo, "psu1", "dist1", CableHighVoltage)
	connect(t, topo, "psu2", "dist1", CableHighVoltage)
	connect(t, topo, "dist1", "srv1", CablePower)

	NewPowerResolver(topo).Resolve()

	if psu1.Power.UsedWatts+psu2.Power.UsedWatts != 40 {
		t.Fatalf("total booked = %v, want 40", psu1.Power.UsedWatts+psu2.Power.UsedWatts)
	}
	if psu1.Power.UsedWatts != 40 {
		t.Fatalf("zero-capacity demand should land on the first PSU, got %v", psu1.Power.UsedWatts)
	}
}

func TestPowerOvercommitIsSoft(t *testing.T) {
	topo := NewTopology()
	psu := newPSUNode("psu1", 10)
	srv := newServerNode("srv1", 4, 100, 1000)
	srv.DrawWatts = 50
	mustAdd(t, topo, psu, srv)
	connect(t, topo, "psu1", "srv1", CablePower)

	resolver := NewPowerResolver(topo)
	resolver.Resolve()

	// Overcommit never gates delivery; it is surfaced, not enforced.
	if !srv.Powered {
		t.Fatalf("device must stay powered past PSU capacity")
	}
	if !psu.Power.Overcommitted() {
		t.Fatalf("50W on a 10W PSU must report overcommitted")
	}
	if got := resolver.OvercommittedSources(); got != 1 {
		t.Fatalf("OvercommittedSources = %d, want 1", got)
	}
	if got := resolver.TotalDrawWatts(); got != 50 {
		t.Fatalf("TotalDrawWatts = %v, want 50", got)
	}
}

func TestPowerRackDemandAndContents(t *testing.T) {
	topo := NewTopology()
	psu := newPSUNode("psu1", 1000)
	rack := newRackNode("rack1", 4)
	sw := newSwitchNode("sw1", 1000, 8)
	srv := newServerNode("srv1", 4, 100, 1000)
	mustAdd(t, topo, psu, rack, sw, srv)
	if err := topo.PlaceInRack("sw1", "rack1"); err != nil {
		t.Fatalf("PlaceInRack error: %v", err)
	}
	if err := topo.PlaceInRack("srv1", "rack1"); err != nil {
		t.Fatalf("PlaceInRack error: %v", err)
	}
	connect(t, topo, "psu1", "rack1", CablePower)

	NewPowerResolver(topo).Resolve()

	// Rack demand is the summed draw of its contents (50 + 100).
	if got := psu.Power.UsedWatts; got != 150 {
		t.Fatalf("PSU UsedWatts = %v, want 150", got)
	}
	if !sw.Powered || !srv.Powered {
		t.Fatalf("rack contents must be powered through the rack edge")
	}
	// The rack itself draws nothing.
	if rack.DrawsPower() {
		t.Fatalf("racks must not draw power themselves")
	}
}

func TestPowerResolveIsIdempotent(t *testing.T) {
	topo := NewTopology()
	psu := newPSUNode("psu1", 100)
	srv := newServerNode("srv1", 4, 100, 1000)
	srv.DrawWatts = 30
	mustAdd(t, topo, psu, srv)
	connect(t, topo, "psu1", "srv1", CablePower)

	resolver := NewPowerResolver(topo)
	resolver.Resolve()
	first := psu.Power.UsedWatts
	resolver.Resolve()
	second := psu.Power.UsedWatts

	// The pass is a full rewrite: usage must not accumulate.
	if first != second || first != 30 {
		t.Fatalf("UsedWatts after two passes = %v then %v, want 30 both times", first, second)
	}
}

func TestPowerUnfedDistributorDeliversNothing(t *testing.T) {
	topo := NewTopology()
	dist := newDistributorNode("dist1", 100)
	srv := newServerNode("srv1", 4, 100, 1000)
	mustAdd(t, topo, dist, srv)
	connect(t, topo, "dist1", "srv1", CablePower)

	NewPowerResolver(topo).Resolve()

	if srv.Powered {
		t.Fatalf("device on an unfed distributor must stay unpowered")
	}
	if dist.Powered {
		t.Fatalf("distributor without a PSU feed must stay unpowered")
	}
}

func TestPowerRackInternalEdgesAreSkipped(t *testing.T) {
	topo := NewTopology()
	rack := newRackNode("rack1", 4)
	srv := newServerNode("srv1", 4, 100, 1000)
	mustAdd(t, topo, rack, srv)
	if err := topo.PlaceInRack("srv1", "rack1"); err != nil {
		t.Fatalf("PlaceInRack error: %v", err)
	}

	NewPowerResolver(topo).Resolve()

	// The auto-wired internal edge alone must not power anything.
	if srv.Powered {
		t.Fatalf("server powered through internal wiring only, want unpowered")
	}
}

package core

// PowerResolver recomputes every PSU's power usage and every device's
// powered flag from the current topology. The pass is a full rewrite of
// derived state: nothing is carried over from the previous tick, so the
// result is idempotent and independent of edge ordering.
//
// Capacity is deliberately soft: a device is powered whenever any
// demand path exists, even if the absorbing PSUs are pushed past their
// capacity. Overcommit is surfaced through PowerState.Overcommitted and
// the warning overlay, never throttled.
type PowerResolver struct {
	topo *Topology
}

func NewPowerResolver(topo *Topology) *PowerResolver {
	return &PowerResolver{topo: topo}
}

// Resolve runs one resolver pass over the topology.
func (r *PowerResolver) Resolve() {
	nodes := r.topo.Nodes()

	// 1) Reset all derived power state.
	for _, n := range nodes {
		if n.Power != nil {
			n.Power.UsedWatts = 0
		}
		switch {
		case n.Cat == CategoryPSU:
			n.Powered = true
		default:
			n.Powered = false
		}
	}

	// 2) Map each distributor to the PSUs feeding it over
	// high-voltage edges. A distributor with at least one feed is
	// itself considered powered.
	feeds := make(map[string][]*Node)
	for _, dist := range r.topo.NodesByCategory(CategoryDistributor) {
		var psus []*Node
		for _, neighbor := range r.topo.Neighbors(dist.ID, CableHighVoltage) {
			if neighbor.Cat == CategoryPSU {
				psus = append(psus, neighbor)
			}
		}
		feeds[dist.ID] = psus
		if len(psus) > 0 {
			dist.Powered = true
		}
	}

	// 3) Walk every non-internal power edge and assign demand.
	for _, conn := range r.topo.Connections() {
		if conn.Class != CablePower || conn.RackInternal {
			continue
		}
		a := r.topo.GetNode(conn.NodeA)
		b := r.topo.GetNode(conn.NodeB)
		if a == nil || b == nil {
			continue
		}

		source, device, psus := r.resolveEdge(a, b, feeds)
		if source == nil || device == nil || len(psus) == 0 {
			continue
		}

		demand := r.demandOf(device)
		shares := computeShares(demand, psus)
		for i, psu := range psus {
			psu.Power.UsedWatts += shares[i]
		}
		if source.Cat == CategoryDistributor && source.Power != nil {
			source.Power.UsedWatts += demand
		}
		r.markPowered(device)
	}
}

// resolveEdge identifies the powered device and its upstream source on
// a power edge: either a direct PSU, or a distributor with its PSU
// feed list. Edges without an upstream source deliver nothing.
func (r *PowerResolver) resolveEdge(a, b *Node, feeds map[string][]*Node) (source, device *Node, psus []*Node) {
	switch {
	case a.Cat == CategoryPSU && b.Cat != CategoryPSU:
		return a, b, []*Node{a}
	case b.Cat == CategoryPSU && a.Cat != CategoryPSU:
		return b, a, []*Node{b}
	case a.Cat == CategoryDistributor && b.Cat != CategoryDistributor:
		return a, b, feeds[a.ID]
	case b.Cat == CategoryDistributor && a.Cat != CategoryDistributor:
		return b, a, feeds[b.ID]
	}
	return nil, nil, nil
}

// demandOf returns the wattage a device pulls over its power edge. A
// rack demands the summed draw of its powered-capable contents.
func (r *PowerResolver) demandOf(device *Node) float64 {
	if device.Cat != CategoryRack {
		return device.DrawWatts
	}
	demand := 0.0
	for _, content := range r.topo.RackContents(device.ID) {
		if content.DrawsPower() {
			demand += content.DrawWatts
		}
	}
	return demand
}

// markPowered flags the device, and for racks every powered-capable
// content, as powered.
func (r *PowerResolver) markPowered(device *Node) {
	device.Powered = true
	if device.Cat != CategoryRack {
		return
	}
	for _, content := range r.topo.RackContents(device.ID) {
		if content.DrawsPower() {
			content.Powered = true
		}
	}
}

// computeShares splits demand across PSUs proportionally to capacity:
// share_i = capacity_i / Σcapacity × demand. When total capacity is
// zero the entire demand lands on the first PSU. The returned shares
// always sum to demand for a non-empty PSU list.
func computeShares(demand float64, psus []*Node) []float64 {
	if len(psus) == 0 {
		return nil
	}
	shares := make([]float64, len(psus))

	total := 0.0
	for _, psu := range psus {
		if psu.Power != nil {
			total += psu.Power.CapacityWatts
		}
	}
	if total <= 0 {
		shares[0] = demand
		return shares
	}
	for i, psu := range psus {
		capacity := 0.0
		if psu.Power != nil {
			capacity = psu.Power.CapacityWatts
		}
		shares[i] = capacity / total * demand
	}
	return shares
}

// TotalDrawWatts sums booked PSU usage, for the power-cost settlement
// and the draw gauge.
func (r *PowerResolver) TotalDrawWatts() float64 {
	total := 0.0
	for _, psu := range r.topo.NodesByCategory(CategoryPSU) {
		if psu.Power != nil {
			total += psu.Power.UsedWatts
		}
	}
	return total
}

// OvercommittedSources counts PSUs and distributors whose booked demand
// exceeds capacity.
func (r *PowerResolver) OvercommittedSources() int {
	count := 0
	for _, n := range r.topo.Nodes() {
		if n.Power.Overcommitted() {
			count++
		}
	}
	return count
}

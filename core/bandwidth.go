package core

import "math"

// TransferDirection selects which side of a contract's traffic is
// being rated. The constraint math is symmetric today; the direction
// still travels with every request so per-direction device limits can
// be introduced without touching callers.
type TransferDirection string

const (
	TransferDownload TransferDirection = "download"
	TransferUpload   TransferDirection = "upload"
)

// BaseRatePctPerSec is the progress a transfer makes per second when
// the achievable rate matches the contract's requested rate exactly.
const BaseRatePctPerSec = 2.0

// BandwidthArbitrator computes the achievable transfer rate for a
// requested nominal rate given modem, server, switch, and router limits
// and the current contention level.
type BandwidthArbitrator struct {
	topo *Topology
}

func NewBandwidthArbitrator(topo *Topology) *BandwidthArbitrator {
	return &BandwidthArbitrator{topo: topo}
}

// RatePercentPerSecond converts the achievable throughput for a
// requested rate into percent progress per second:
// (effective/requested) × base rate. transferring is the number of
// contracts currently in a transferring state; it divides the capacity
// of every switch and router.
func (b *BandwidthArbitrator) RatePercentPerSecond(requestedMbps float64, _ TransferDirection, transferring int) float64 {
	if requestedMbps <= 0 {
		return 0
	}
	effective := b.effectiveMbps(requestedMbps, transferring)
	return effective / requestedMbps * BaseRatePctPerSec
}

// effectiveMbps is the minimum over every constraint in the path:
// requested rate, total powered modem capacity, the fastest powered
// server's downlink, and per-device switch/router capacity divided by
// the contention count. An absent device class is unconstrained; an
// absent modem or server means no path at all.
func (b *BandwidthArbitrator) effectiveMbps(requestedMbps float64, transferring int) float64 {
	modemTotal := b.poweredModemCapacity()
	if modemTotal <= 0 {
		return 0
	}
	serverBest := b.fastestServerDownlink()
	if serverBest <= 0 {
		return 0
	}

	effective := math.Min(requestedMbps, modemTotal)
	effective = math.Min(effective, serverBest)

	// Guard the division: with no active transfers a device's full
	// capacity applies.
	if transferring < 1 {
		transferring = 1
	}
	for _, cat := range []NodeCategory{CategorySwitch, CategoryRouter} {
		if limit, present := b.slowestSharedDevice(cat, transferring); present {
			effective = math.Min(effective, limit)
		}
	}
	return effective
}

func (b *BandwidthArbitrator) poweredModemCapacity() float64 {
	total := 0.0
	for _, modem := range b.topo.NodesByCategory(CategoryModem) {
		if modem.Powered && modem.Net != nil {
			total += modem.Net.CapacityMbps
		}
	}
	return total
}

// fastestServerDownlink returns the best effective downlink across all
// powered servers. An expansion card with a downlink override in the
// server's rack replaces the built-in figure.
func (b *BandwidthArbitrator) fastestServerDownlink() float64 {
	best := 0.0
	for _, server := range b.topo.NodesByCategory(CategoryServer) {
		if !server.Powered || server.Server == nil {
			continue
		}
		downlink := server.Server.DownlinkMbps
		if override := b.downlinkOverride(server); override > 0 {
			downlink = override
		}
		if downlink > best {
			best = downlink
		}
	}
	return best
}

func (b *BandwidthArbitrator) downlinkOverride(server *Node) float64 {
	if server.RackID == "" {
		return 0
	}
	best := 0.0
	for _, n := range b.topo.RackContents(server.RackID) {
		if n.Cat == CategoryExpansion && n.Expansion != nil && n.Expansion.DownlinkMbps > best {
			best = n.Expansion.DownlinkMbps
		}
	}
	return best
}

// slowestSharedDevice returns the tightest capacity/contention quotient
// across powered devices of one category, and whether any such device
// exists. Absent classes leave the rate unconstrained.
func (b *BandwidthArbitrator) slowestSharedDevice(cat NodeCategory, transferring int) (float64, bool) {
	limit := math.Inf(1)
	present := false
	for _, n := range b.topo.NodesByCategory(cat) {
		if !n.Powered || n.Net == nil {
			continue
		}
		present = true
		share := n.Net.CapacityMbps / float64(transferring)
		if share < limit {
			limit = share
		}
	}
	if !present {
		return 0, false
	}
	return limit, true
}

package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rackworks/datacenter-simulator/core"
)

// internal JSON shapes – kept unexported so the file format can evolve
// independently of the in-memory tables.
type catalogJSON struct {
	Hardware []hardwareJSON `json:"hardware"`
	Cables   []cableJSON    `json:"cables"`
}

type hardwareJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`

	DrawWatts          float64 `json:"draw_watts"`
	PowerCapacityWatts float64 `json:"power_capacity_watts"`

	Cores        int     `json:"cores"`
	GPUs         int     `json:"gpus"`
	StorageGB    float64 `json:"storage_gb"`
	DownlinkMbps float64 `json:"downlink_mbps"`
	Ports        int     `json:"ports"`
	CapacityMbps float64 `json:"capacity_mbps"`

	FiberUplink bool `json:"fiber_uplink"`

	RackCapacity  int  `json:"rack_capacity"`
	RackMountable bool `json:"rack_mountable"`

	Price float64 `json:"price"`
}

type cableJSON struct {
	Class         string  `json:"class"`
	Watts         float64 `json:"watts"`
	CostPerSecond float64 `json:"cost_per_second"`
}

// Load reads a JSON catalog from r. It fails on structural errors and
// on rows whose category is not in the closed category set; a partial
// catalog is never returned.
func Load(r io.Reader) (*Catalog, error) {
	var payload catalogJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("catalog: decode failed: %w", err)
	}

	cat := New()
	for _, row := range payload.Hardware {
		category, err := categoryFromString(row.Category)
		if err != nil {
			return nil, fmt.Errorf("catalog: hardware %q: %w", row.ID, err)
		}
		spec := &HardwareSpec{
			ID:                 row.ID,
			Name:               row.Name,
			Category:           category,
			DrawWatts:          row.DrawWatts,
			PowerCapacityWatts: row.PowerCapacityWatts,
			Cores:              row.Cores,
			GPUs:               row.GPUs,
			StorageGB:          row.StorageGB,
			DownlinkMbps:       row.DownlinkMbps,
			Ports:              row.Ports,
			CapacityMbps:       row.CapacityMbps,
			FiberUplink:        row.FiberUplink,
			RackCapacity:       row.RackCapacity,
			RackMountable:      row.RackMountable,
			Price:              row.Price,
		}
		if err := cat.AddHardware(spec); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}

	for _, row := range payload.Cables {
		class, err := cableClassFromString(row.Class)
		if err != nil {
			return nil, fmt.Errorf("catalog: cable %q: %w", row.Class, err)
		}
		if err := cat.AddCable(&CableSpec{
			Class:         class,
			Watts:         row.Watts,
			CostPerSecond: row.CostPerSecond,
		}); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}

	return cat, nil
}

func categoryFromString(s string) (core.NodeCategory, error) {
	switch core.NodeCategory(s) {
	case core.CategoryRack, core.CategoryServer, core.CategorySwitch, core.CategoryRouter,
		core.CategoryModem, core.CategoryPSU, core.CategoryDistributor, core.CategoryExpansion:
		return core.NodeCategory(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

func cableClassFromString(s string) (core.CableClass, error) {
	switch core.CableClass(s) {
	case core.CableEthernet, core.CableFiber, core.CablePower, core.CableHighVoltage:
		return core.CableClass(s), nil
	}
	return "", fmt.Errorf("unknown cable class %q", s)
}

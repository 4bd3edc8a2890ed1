// Package catalog holds the static hardware and cable specification
// tables. The tables are read-only configuration: the simulation core
// consumes them at placement time and never mutates them.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rackworks/datacenter-simulator/core"
)

var (
	ErrUnknownSpec  = errors.New("unknown hardware specification")
	ErrUnknownCable = errors.New("unknown cable specification")
	ErrSpecExists   = errors.New("hardware specification already exists")
	ErrSpecBadInput = errors.New("invalid hardware specification")
)

// HardwareSpec is one row of the hardware table, keyed by string ID.
// Only the fields matching the category are meaningful; Instantiate
// copies them into the right node payload.
type HardwareSpec struct {
	ID       string            `json:"ID"`
	Name     string            `json:"Name"`
	Category core.NodeCategory `json:"Category"`

	DrawWatts          float64 `json:"DrawWatts,omitempty"`
	PowerCapacityWatts float64 `json:"PowerCapacityWatts,omitempty"` // psu, power_distributor

	Cores        int     `json:"Cores,omitempty"`        // server
	GPUs         int     `json:"GPUs,omitempty"`         // server
	StorageGB    float64 `json:"StorageGB,omitempty"`    // server
	DownlinkMbps float64 `json:"DownlinkMbps,omitempty"` // server, expansion
	Ports        int     `json:"Ports,omitempty"`        // server, switch, router, modem
	CapacityMbps float64 `json:"CapacityMbps,omitempty"` // switch, router, modem

	FiberUplink bool `json:"FiberUplink,omitempty"` // expansion

	RackCapacity  int  `json:"RackCapacity,omitempty"` // rack
	RackMountable bool `json:"RackMountable,omitempty"`

	Price float64 `json:"Price,omitempty"`
}

// CableSpec is one row of the cable table: nominal wattage for power
// classes and the per-second connectivity cost billed while the cable
// exists.
type CableSpec struct {
	Class         core.CableClass `json:"Class"`
	Watts         float64         `json:"Watts,omitempty"`
	CostPerSecond float64         `json:"CostPerSecond,omitempty"`
}

// Catalog is the loaded specification set. It is immutable after
// loading, so lookups need no synchronisation.
type Catalog struct {
	hardware map[string]*HardwareSpec
	cables   map[core.CableClass]*CableSpec
}

// New creates an empty catalog; tests and loaders fill it via Add.
func New() *Catalog {
	return &Catalog{
		hardware: make(map[string]*HardwareSpec),
		cables:   make(map[core.CableClass]*CableSpec),
	}
}

func (c *Catalog) AddHardware(spec *HardwareSpec) error {
	if spec == nil || spec.ID == "" {
		return fmt.Errorf("%w", ErrSpecBadInput)
	}
	if _, exists := c.hardware[spec.ID]; exists {
		return fmt.Errorf("%w: %q", ErrSpecExists, spec.ID)
	}
	c.hardware[spec.ID] = spec
	return nil
}

func (c *Catalog) AddCable(spec *CableSpec) error {
	if spec == nil || spec.Class == "" {
		return fmt.Errorf("%w: empty cable class", ErrSpecBadInput)
	}
	c.cables[spec.Class] = spec
	return nil
}

// Hardware looks up a spec by ID. An unknown ID aborts only the single
// action referencing it, so the error carries the offending ID.
func (c *Catalog) Hardware(id string) (*HardwareSpec, error) {
	spec, ok := c.hardware[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpec, id)
	}
	return spec, nil
}

// Cable looks up a cable spec by class.
func (c *Catalog) Cable(class core.CableClass) (*CableSpec, error) {
	spec, ok := c.cables[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCable, class)
	}
	return spec, nil
}

// Cables returns every cable spec, sorted by class. The billing layer
// uses this to build its per-class cost table.
func (c *Catalog) Cables() []*CableSpec {
	out := make([]*CableSpec, 0, len(c.cables))
	for _, spec := range c.cables {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// HardwareIDs returns every hardware spec ID, sorted.
func (c *Catalog) HardwareIDs() []string {
	out := make([]string, 0, len(c.hardware))
	for id := range c.hardware {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Instantiate builds a fresh node from a spec. The category switch is
// exhaustive: a spec with a category this build does not know is an
// error, never a silently half-initialised node.
func (c *Catalog) Instantiate(nodeID, specID string) (*core.Node, error) {
	spec, err := c.Hardware(specID)
	if err != nil {
		return nil, err
	}

	n := &core.Node{
		ID:        nodeID,
		SpecID:    spec.ID,
		Name:      spec.Name,
		Cat:       spec.Category,
		DrawWatts: spec.DrawWatts,
	}

	switch spec.Category {
	case core.CategoryRack:
		n.Rack = &core.RackState{Capacity: spec.RackCapacity}
	case core.CategoryServer:
		n.Server = &core.ServerState{
			Cores:        spec.Cores,
			GPUs:         spec.GPUs,
			StorageGB:    spec.StorageGB,
			DownlinkMbps: spec.DownlinkMbps,
			Ports:        spec.Ports,
		}
	case core.CategorySwitch, core.CategoryRouter, core.CategoryModem:
		n.Net = &core.NetDeviceState{
			CapacityMbps: spec.CapacityMbps,
			Ports:        spec.Ports,
		}
	case core.CategoryPSU, core.CategoryDistributor:
		n.Power = &core.PowerState{CapacityWatts: spec.PowerCapacityWatts}
	case core.CategoryExpansion:
		n.Expansion = &core.ExpansionState{
			FiberUplink:  spec.FiberUplink,
			DownlinkMbps: spec.DownlinkMbps,
		}
	default:
		return nil, fmt.Errorf("%w: %q has unknown category %q", ErrSpecBadInput, specID, spec.Category)
	}
	return n, nil
}

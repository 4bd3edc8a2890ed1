package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackworks/datacenter-simulator/core"
)

func TestAddAndLookupHardware(t *testing.T) {
	cat := New()
	require.NoError(t, cat.AddHardware(&HardwareSpec{ID: "srv-1", Category: core.CategoryServer, Cores: 8}))

	spec, err := cat.Hardware("srv-1")
	require.NoError(t, err)
	assert.Equal(t, 8, spec.Cores)

	_, err = cat.Hardware("missing")
	assert.ErrorIs(t, err, ErrUnknownSpec)
	assert.Contains(t, err.Error(), "missing")

	assert.ErrorIs(t, cat.AddHardware(&HardwareSpec{ID: "srv-1"}), ErrSpecExists)
	assert.ErrorIs(t, cat.AddHardware(&HardwareSpec{}), ErrSpecBadInput)
	assert.ErrorIs(t, cat.AddHardware(nil), ErrSpecBadInput)
}

func TestCableLookup(t *testing.T) {
	cat := New()
	require.NoError(t, cat.AddCable(&CableSpec{Class: core.CablePower, Watts: 20, CostPerSecond: 0.001}))

	spec, err := cat.Cable(core.CablePower)
	require.NoError(t, err)
	assert.Equal(t, 20.0, spec.Watts)

	_, err = cat.Cable(core.CableFiber)
	assert.ErrorIs(t, err, ErrUnknownCable)
}

func TestCablesSortedByClass(t *testing.T) {
	cat := New()
	require.NoError(t, cat.AddCable(&CableSpec{Class: core.CablePower, CostPerSecond: 0.001}))
	require.NoError(t, cat.AddCable(&CableSpec{Class: core.CableEthernet, CostPerSecond: 0.002}))

	cables := cat.Cables()
	require.Len(t, cables, 2)
	assert.Equal(t, core.CableEthernet, cables[0].Class)
	assert.Equal(t, core.CablePower, cables[1].Class)
	assert.Equal(t, 0.002, cables[0].CostPerSecond)
}

func TestInstantiateBuildsCategoryPayloads(t *testing.T) {
	cat := New()
	specs := []*HardwareSpec{
		{ID: "rack", Category: core.CategoryRack, RackCapacity: 42},
		{ID: "server", Category: core.CategoryServer, DrawWatts: 350, Cores: 16, GPUs: 2, StorageGB: 2000, DownlinkMbps: 1000, Ports: 2},
		{ID: "switch", Category: core.CategorySwitch, CapacityMbps: 48000, Ports: 48},
		{ID: "router", Category: core.CategoryRouter, CapacityMbps: 10000, Ports: 8},
		{ID: "modem", Category: core.CategoryModem, CapacityMbps: 1000, Ports: 2},
		{ID: "psu", Category: core.CategoryPSU, PowerCapacityWatts: 1500},
		{ID: "dist", Category: core.CategoryDistributor, PowerCapacityWatts: 3000},
		{ID: "exp", Category: core.CategoryExpansion, FiberUplink: true, DownlinkMbps: 10000},
	}
	for _, s := range specs {
		require.NoError(t, cat.AddHardware(s))
	}

	t.Run("rack", func(t *testing.T) {
		n, err := cat.Instantiate("n1", "rack")
		require.NoError(t, err)
		require.NotNil(t, n.Rack)
		assert.Equal(t, 42, n.Rack.Capacity)
	})
	t.Run("server", func(t *testing.T) {
		n, err := cat.Instantiate("n1", "server")
		require.NoError(t, err)
		require.NotNil(t, n.Server)
		assert.Equal(t, 16, n.Server.Cores)
		assert.Equal(t, 2, n.Server.GPUs)
		assert.Equal(t, 350.0, n.DrawWatts)
		assert.Zero(t, n.Server.StoredGB)
	})
	t.Run("net devices", func(t *testing.T) {
		for _, id := range []string{"switch", "router", "modem"} {
			n, err := cat.Instantiate("n1", id)
			require.NoError(t, err)
			require.NotNil(t, n.Net, id)
		}
	})
	t.Run("power sources", func(t *testing.T) {
		for _, id := range []string{"psu", "dist"} {
			n, err := cat.Instantiate("n1", id)
			require.NoError(t, err)
			require.NotNil(t, n.Power, id)
			assert.Zero(t, n.Power.UsedWatts)
		}
	})
	t.Run("expansion", func(t *testing.T) {
		n, err := cat.Instantiate("n1", "exp")
		require.NoError(t, err)
		require.NotNil(t, n.Expansion)
		assert.True(t, n.Expansion.FiberUplink)
	})
	t.Run("unknown spec", func(t *testing.T) {
		_, err := cat.Instantiate("n1", "nope")
		assert.ErrorIs(t, err, ErrUnknownSpec)
	})
}

func TestInstantiateRejectsUnknownCategory(t *testing.T) {
	cat := New()
	require.NoError(t, cat.AddHardware(&HardwareSpec{ID: "weird", Category: core.NodeCategory("mainframe")}))

	_, err := cat.Instantiate("n1", "weird")
	assert.ErrorIs(t, err, ErrSpecBadInput)
}

func TestHardwareIDsSorted(t *testing.T) {
	cat := New()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, cat.AddHardware(&HardwareSpec{ID: id, Category: core.CategoryPSU}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, cat.HardwareIDs())
}

const sampleCatalogJSON = `{
  "hardware": [
    {"id": "psu-600w", "name": "600W PSU", "category": "psu", "power_capacity_watts": 600, "price": 90},
    {"id": "server-basic", "name": "Basic Server", "category": "server", "draw_watts": 100,
     "cores": 8, "storage_gb": 1000, "downlink_mbps": 1000, "ports": 2, "rack_mountable": true, "price": 800},
    {"id": "exp-fiber", "name": "Fiber NIC", "category": "expansion", "fiber_uplink": true, "downlink_mbps": 10000}
  ],
  "cables": [
    {"class": "power", "watts": 20, "cost_per_second": 0.001},
    {"class": "ethernet", "cost_per_second": 0.002}
  ]
}`

func TestLoad(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleCatalogJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"exp-fiber", "psu-600w", "server-basic"}, cat.HardwareIDs())

	srv, err := cat.Hardware("server-basic")
	require.NoError(t, err)
	assert.Equal(t, core.CategoryServer, srv.Category)
	assert.Equal(t, 800.0, srv.Price)
	assert.True(t, srv.RackMountable)

	cable, err := cat.Cable(core.CableEthernet)
	require.NoError(t, err)
	assert.Equal(t, 0.002, cable.CostPerSecond)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := Load(strings.NewReader("{"))
		assert.Error(t, err)
	})
	t.Run("unknown category", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"hardware": [{"id": "x", "category": "blimp"}]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "blimp")
	})
	t.Run("unknown cable class", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"cables": [{"class": "coax"}]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "coax")
	})
	t.Run("duplicate id", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"hardware": [
			{"id": "x", "category": "psu"}, {"id": "x", "category": "psu"}]}`))
		assert.ErrorIs(t, err, ErrSpecExists)
	})
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rackworks/datacenter-simulator/catalog"
	"github.com/rackworks/datacenter-simulator/core"
	"github.com/rackworks/datacenter-simulator/internal/httpapi"
	"github.com/rackworks/datacenter-simulator/internal/logging"
	"github.com/rackworks/datacenter-simulator/internal/observability"
	"github.com/rackworks/datacenter-simulator/internal/sim/state"
	"github.com/rackworks/datacenter-simulator/model"
	"github.com/rackworks/datacenter-simulator/timectrl"
)

func main() {
	duration := flag.Duration("duration", 60*time.Second, "total simulated duration (0 runs forever)")
	tick := flag.Duration("tick", 1*time.Second, "tick interval")
	speed := flag.Float64("speed", 1.0, "real-time speed multiplier")
	burst := flag.Bool("burst", false, "run in unbounded max-speed mode (vs real-time)")
	catalogPath := flag.String("catalog", "configs/catalog.json", "hardware and cable catalog file")
	addr := flag.String("addr", ":8080", "HTTP listen address for the API and /metrics")
	balance := flag.Float64("balance", 10000, "starting money balance")
	demo := flag.Bool("demo", true, "build the demo datacenter and offer demo contracts at startup")

	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	metrics, err := observability.NewSimCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	cat, err := loadCatalog(*catalogPath)
	if err != nil {
		log.Error(ctx, "catalog load failed",
			logging.String("path", *catalogPath),
			logging.String("error", err.Error()),
		)
		os.Exit(1)
	}

	sim := state.New(cat,
		state.WithLogger(log),
		state.WithMetrics(metrics),
		state.WithStartingBalance(*balance),
	)

	if *demo {
		if err := buildDemoDatacenter(ctx, sim); err != nil {
			log.Error(ctx, "demo scenario failed", logging.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// ==== HTTP surface: JSON API + Prometheus metrics ====

	mux := http.NewServeMux()
	httpapi.NewServer(sim, log).Routes(mux)
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		log.Info(ctx, "http listening", logging.String("addr", *addr))
		if err := http.ListenAndServe(*addr, mux); err != nil {
			log.Error(ctx, "http server stopped", logging.String("error", err.Error()))
		}
	}()

	// ==== Time controller ====

	mode := timectrl.RealTime
	if *burst {
		mode = timectrl.Unbounded
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), *tick, mode)
	tc.SetMultiplier(*speed)

	tc.AddListener(func(dt float64) {
		report := sim.Advance(ctx, dt)
		for _, id := range report.CompletedContracts {
			fmt.Printf("[%8.1fs] contract %s complete (payments this tick: %.2f)\n",
				tc.Elapsed(), id, report.Payments)
		}
	})

	fmt.Printf("Starting simulation: duration=%s, tick=%s, speed=%.1fx, burst=%v\n",
		*duration, *tick, *speed, *burst)
	<-tc.Start(*duration)

	fmt.Printf("Simulation complete: elapsed=%.0fs balance=%.2f\n", tc.Elapsed(), sim.Balance())
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %q: %w", path, err)
	}
	defer f.Close()
	return catalog.Load(f)
}

// buildDemoDatacenter assembles a minimal working room: one PSU feeding
// a populated rack and a modem, with an uplink chain the bandwidth
// arbitrator can use. It then offers one compute and one store contract.
func buildDemoDatacenter(ctx context.Context, sim *state.SimulationContext) error {
	type placement struct {
		nodeID, specID, rackID string
	}
	for _, p := range []placement{
		{"psu-1", "psu-1500w", ""},
		{"rack-1", "rack-42u", ""},
		{"switch-1", "switch-48p", "rack-1"},
		{"server-1", "server-dual-xeon", "rack-1"},
		{"server-2", "server-gpu", "rack-1"},
		{"modem-1", "modem-docsis", ""},
	} {
		if _, err := sim.PlaceNode(ctx, p.nodeID, p.specID, p.rackID); err != nil {
			return fmt.Errorf("place %s: %w", p.nodeID, err)
		}
	}

	type cable struct {
		a, b  string
		class core.CableClass
	}
	for _, c := range []cable{
		{"psu-1", "rack-1", core.CablePower},
		{"psu-1", "modem-1", core.CablePower},
		{"modem-1", "rack-1", core.CableEthernet},
		{"rack-1", "server-1", core.CableEthernet},
		{"rack-1", "server-2", core.CableEthernet},
	} {
		if _, err := sim.Connect(ctx, c.a, c.b, c.class); err != nil {
			return fmt.Errorf("connect %s-%s: %w", c.a, c.b, err)
		}
	}

	offers := []model.ContractRequest{
		{
			Type:        model.ContractCompute,
			Work:        model.WorkCPU,
			Demand:      model.Demand{CPUCores: 8, StorageGB: 40, TransferRateMbps: 100},
			Payment:     model.PaymentTerms{LumpSum: 120},
			PacketCount: 8,
			ComputeTime: 10,
			InputSize:   2,
			OutputSize:  1,
		},
		{
			Type:        model.ContractStore,
			Work:        model.WorkStore,
			Demand:      model.Demand{StorageGB: 200, TransferRateMbps: 50},
			Payment:     model.PaymentTerms{PerSecond: 0.05},
			PacketCount: 4,
			ComputeTime: 30,
			InputSize:   50,
		},
	}
	for _, req := range offers {
		if c, ok := sim.OfferContract(ctx, req); ok {
			fmt.Printf("Accepted demo contract %s (%s/%s, %d packets)\n",
				c.ID, c.Type, c.Work, c.PacketCount)
		} else {
			fmt.Printf("Demo contract withheld (%s/%s)\n", req.Type, req.Work)
		}
	}
	return nil
}

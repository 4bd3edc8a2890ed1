package core

import (
	"errors"
	"math"
	"testing"

	"github.com/rackworks/datacenter-simulator/model"
)

func TestContractSetAddRemove(t *testing.T) {
	set := NewContractSet()
	c := computeContract("c1", 2, 10, 1, 1)
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := set.Add(c); !errors.Is(err, ErrContractExists) {
		t.Fatalf("expected ErrContractExists, got %v", err)
	}
	if got := set.Get("c1"); got != c {
		t.Fatalf("Get returned %v", got)
	}
	if err := set.Remove("c1"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if err := set.Remove("c1"); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("expected ErrContractNotFound, got %v", err)
	}
}

func TestContractStateMachine(t *testing.T) {
	set := NewContractSet()
	c := computeContract("c1", 2, 10, 1, 1)
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	q := NewWorkQueue()
	packets := q.AddContractPackets(c)

	set.UpdateStates(q)
	if c.State != model.ContractIdle {
		t.Fatalf("all pending: state = %v, want idle", c.State)
	}

	packets[0].State = PacketDownloading
	packets[1].State = PacketProcessing
	set.UpdateStates(q)
	if c.State != model.ContractDownloading {
		t.Fatalf("any downloading wins: state = %v, want downloading", c.State)
	}

	packets[0].State = PacketProcessing
	set.UpdateStates(q)
	if c.State != model.ContractComputing {
		t.Fatalf("state = %v, want computing", c.State)
	}

	packets[0].State = PacketComplete
	packets[1].State = PacketUploading
	set.UpdateStates(q)
	if c.State != model.ContractUploading {
		t.Fatalf("state = %v, want uploading", c.State)
	}

	packets[1].State = PacketComplete
	set.UpdateStates(q)
	if c.State != model.ContractComplete {
		t.Fatalf("state = %v, want complete", c.State)
	}

	// Complete is sticky, even after the packets are purged.
	q.PurgeContract("c1")
	set.UpdateStates(q)
	if c.State != model.ContractComplete {
		t.Fatalf("state = %v after purge, want complete to stick", c.State)
	}
}

func TestSmoothProgressBlendsStages(t *testing.T) {
	set := NewContractSet()
	c := computeContract("c1", 1, 6, 2, 2)
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	q := NewWorkQueue()
	packets := q.AddContractPackets(c)

	// Weights are inputSize:computeTime:outputSize = 2:6:2. Download
	// done plus half the compute = (2 + 3) / 10.
	packets[0].DownloadProgress = 1
	packets[0].ProcessingProgress = 0.5

	got, ok := set.SmoothProgress(q, "c1")
	if !ok {
		t.Fatalf("SmoothProgress reported unknown contract")
	}
	if math.Abs(got-50) > 1e-9 {
		t.Fatalf("SmoothProgress = %v, want 50", got)
	}

	if _, ok := set.SmoothProgress(q, "ghost"); ok {
		t.Fatalf("unknown contract must report ok=false")
	}
}

func TestSmoothProgressWithoutPackets(t *testing.T) {
	set := NewContractSet()
	c := computeContract("c1", 1, 6, 2, 2)
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	q := NewWorkQueue()

	got, _ := set.SmoothProgress(q, "c1")
	if got != 0 {
		t.Fatalf("no packets, not complete: progress = %v, want 0", got)
	}
	c.State = model.ContractComplete
	got, _ = set.SmoothProgress(q, "c1")
	if got != 100 {
		t.Fatalf("no packets, complete: progress = %v, want 100", got)
	}
}

func TestStageFirstMatchPrecedence(t *testing.T) {
	set := NewContractSet()
	c := computeContract("c1", 3, 10, 1, 1)
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	q := NewWorkQueue()
	packets := q.AddContractPackets(c)

	// One packet still downloading dominates the classification even
	// though another is already uploading.
	packets[0].DownloadProgress = 0.5
	packets[1].DownloadProgress = 1
	packets[1].ProcessingProgress = 1
	packets[1].UploadProgress = 0.5
	packets[2].DownloadProgress = 1
	packets[2].ProcessingProgress = 0.25

	stage, _ := set.Stage(q, "c1")
	if stage != StageDownload {
		t.Fatalf("stage = %v, want download", stage)
	}

	packets[0].DownloadProgress = 1
	stage, progress := set.Stage(q, "c1")
	if stage != StageCompute {
		t.Fatalf("stage = %v, want compute", stage)
	}
	// Only in-bucket packets contribute: (0 + 0.25) / 2.
	if math.Abs(progress-0.125) > 1e-9 {
		t.Fatalf("stage progress = %v, want 0.125", progress)
	}
}

func TestStageStoreContractsReportStore(t *testing.T) {
	set := NewContractSet()
	c := storeContract("c1", 1, 30, 50)
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	q := NewWorkQueue()
	packets := q.AddContractPackets(c)
	packets[0].DownloadProgress = 1
	packets[0].ProcessingProgress = 0.5

	stage, _ := set.Stage(q, "c1")
	if stage != StageStore {
		t.Fatalf("stage = %v, want store", stage)
	}
}

func TestSettleComputePaysLumpSumOnce(t *testing.T) {
	set := NewContractSet()
	c := computeContract("c1", 1, 1, 1, 1)
	c.Payment.LumpSum = 120
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	q := NewWorkQueue()
	packets := q.AddContractPackets(c)
	packets[0].State = PacketComplete
	set.UpdateStates(q)

	report := set.Settle(q, 1.0)
	if report.Payments != 120 {
		t.Fatalf("first settle payments = %v, want 120", report.Payments)
	}
	if len(report.CompletedContracts) != 1 || report.CompletedContracts[0] != "c1" {
		t.Fatalf("completed = %v, want [c1]", report.CompletedContracts)
	}
	if report.PurgedPackets != 1 {
		t.Fatalf("purged = %d, want 1", report.PurgedPackets)
	}

	// Second settle: nothing left to pay or purge.
	report = set.Settle(q, 1.0)
	if report.Payments != 0 || report.PurgedPackets != 0 {
		t.Fatalf("second settle = %+v, want empty", report)
	}
}

func TestSettleStorePaysWhileHolding(t *testing.T) {
	set := NewContractSet()
	c := storeContract("c1", 1, 30, 50)
	c.Payment.PerSecond = 0.5
	if err := set.Add(c); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	q := NewWorkQueue()
	packets := q.AddContractPackets(c)

	// Still downloading: no payment yet.
	packets[0].State = PacketDownloading
	if report := set.Settle(q, 2.0); report.Payments != 0 {
		t.Fatalf("payments while downloading = %v, want 0", report.Payments)
	}

	// Holding (processing): per-second × dt.
	packets[0].State = PacketProcessing
	if report := set.Settle(q, 2.0); math.Abs(report.Payments-1.0) > 1e-9 {
		t.Fatalf("payments while holding = %v, want 1.0", report.Payments)
	}

	// Hold over: payment stops, contract completes and purges.
	packets[0].State = PacketComplete
	set.UpdateStates(q)
	report := set.Settle(q, 2.0)
	if report.Payments != 0 {
		t.Fatalf("payments after hold = %v, want 0", report.Payments)
	}
	if len(report.CompletedContracts) != 1 {
		t.Fatalf("completed = %v, want [c1]", report.CompletedContracts)
	}
}

func TestAutoAcceptHeadroomBoundary(t *testing.T) {
	topo := NewTopology()
	srv := newServerNode("srv1", 20, 1000, 1000)
	srv.Server.GPUs = 20
	mustAdd(t, topo, srv)
	set := NewContractSet()

	request := func(cores int, storage float64) *model.ContractRequest {
		return &model.ContractRequest{
			Type:   model.ContractCompute,
			Work:   model.WorkCPU,
			Demand: model.Demand{CPUCores: cores, StorageGB: storage},
		}
	}

	// 0.95 × 20 cores = 19: exactly at the line is accepted.
	if !set.CanAutoAccept(topo, request(19, 0)) {
		t.Fatalf("19 of 20 cores must be auto-accepted")
	}
	if set.CanAutoAccept(topo, request(20, 0)) {
		t.Fatalf("20 of 20 cores must be withheld")
	}

	// Dimensions are independent: tiny CPU ask, oversized storage.
	if set.CanAutoAccept(topo, request(1, 951)) {
		t.Fatalf("951 of 1000 GB must be withheld")
	}
	if !set.CanAutoAccept(topo, request(1, 950)) {
		t.Fatalf("950 of 1000 GB must be auto-accepted")
	}
}

func TestAutoAcceptCountsActiveDemand(t *testing.T) {
	topo := NewTopology()
	mustAdd(t, topo, newServerNode("srv1", 20, 1000, 1000))
	set := NewContractSet()

	held := computeContract("c1", 1, 1, 1, 1)
	held.Demand = model.Demand{CPUCores: 10}
	if err := set.Add(held); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	req := &model.ContractRequest{
		Type:   model.ContractCompute,
		Work:   model.WorkCPU,
		Demand: model.Demand{CPUCores: 10},
	}
	if set.CanAutoAccept(topo, req) {
		t.Fatalf("10 + 10 of 20 cores exceeds the 19-core headroom")
	}

	// A completed contract releases its demand.
	held.State = model.ContractComplete
	if !set.CanAutoAccept(topo, req) {
		t.Fatalf("demand of complete contracts must not count")
	}
}

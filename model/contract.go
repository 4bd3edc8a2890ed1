package model

// WorkType classifies the kind of work a packet carries.
type WorkType string

const (
	WorkCPU   WorkType = "cpu"
	WorkGPU   WorkType = "gpu"
	WorkStore WorkType = "store"
)

// ContractType distinguishes one-shot compute contracts from ongoing
// storage contracts, which differ in payment model and packet lifecycle.
type ContractType string

const (
	ContractCompute ContractType = "compute"
	ContractStore   ContractType = "store"
)

// ContractState is the coarse lifecycle of a contract, driven by
// packet counts. This is the canonical source of truth for payment and
// purge decisions; the per-packet progress views are reporting only.
type ContractState string

const (
	ContractIdle        ContractState = "idle"
	ContractDownloading ContractState = "downloading"
	ContractComputing   ContractState = "computing"
	ContractUploading   ContractState = "uploading"
	ContractComplete    ContractState = "complete"
)

// Demand describes the resources a contract asks for. Capacity checks
// during auto-accept compare these against the declared totals of the
// current topology.
type Demand struct {
	CPUCores         int     `json:"cpu_cores"`
	GPUCores         int     `json:"gpu_cores"`
	StorageGB        float64 `json:"storage_gb"`
	TransferRateMbps float64 `json:"transfer_rate_mbps"`
}

// PaymentTerms carries both payment models; which one applies follows
// from the contract type. Compute contracts pay LumpSum exactly once on
// completion, store contracts pay PerSecond while data is held.
type PaymentTerms struct {
	LumpSum   float64 `json:"lump_sum"`
	PerSecond float64 `json:"per_second"`
}

// Contract is an externally generated payable unit of work. The
// generator produces ContractRequests; accepting one mints a Contract
// and decomposes it into packets on the work queue.
type Contract struct {
	ID      string       `json:"id"`
	Type    ContractType `json:"type"`
	Work    WorkType     `json:"work"`
	Demand  Demand       `json:"demand"`
	Payment PaymentTerms `json:"payment"`

	// Per-packet parameters used at decomposition time.
	PacketCount int     `json:"packet_count"`
	ComputeTime float64 `json:"compute_time"` // seconds of one dedicated core
	InputSize   float64 `json:"input_size"`   // GB downloaded per packet
	OutputSize  float64 `json:"output_size"`  // GB uploaded per packet

	State ContractState `json:"state"`

	// Paid guards the one-shot lump sum for compute contracts.
	Paid bool `json:"paid"`
}

// ContractRequest is the structured record produced by the external
// contract generator. It has no identity yet; one is assigned when the
// request is accepted.
type ContractRequest struct {
	Type    ContractType `json:"type"`
	Work    WorkType     `json:"work"`
	Demand  Demand       `json:"demand"`
	Payment PaymentTerms `json:"payment"`

	PacketCount int     `json:"packet_count"`
	ComputeTime float64 `json:"compute_time"`
	InputSize   float64 `json:"input_size"`
	OutputSize  float64 `json:"output_size"`
}

// NewContract mints a contract from a generator request. The caller
// supplies the identity; the simulation does not care how IDs are
// produced as long as they are unique.
func NewContract(id string, req ContractRequest) *Contract {
	return &Contract{
		ID:          id,
		Type:        req.Type,
		Work:        req.Work,
		Demand:      req.Demand,
		Payment:     req.Payment,
		PacketCount: req.PacketCount,
		ComputeTime: req.ComputeTime,
		InputSize:   req.InputSize,
		OutputSize:  req.OutputSize,
		State:       ContractIdle,
	}
}

// Active reports whether the contract still holds resources: anything
// short of complete counts against declared capacity for auto-accept.
func (c *Contract) Active() bool {
	return c.State != ContractComplete
}

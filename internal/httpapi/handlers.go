// Package httpapi exposes the simulation over a small JSON surface for
// the UI and tooling: health, snapshot reads, contract progress, and
// the validated topology mutation paths.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rackworks/datacenter-simulator/core"
	"github.com/rackworks/datacenter-simulator/internal/logging"
	"github.com/rackworks/datacenter-simulator/internal/sim/state"
	"github.com/rackworks/datacenter-simulator/model"
)

// Server bundles the handlers around one simulation context.
type Server struct {
	sim *state.SimulationContext
	log logging.Logger
}

func NewServer(sim *state.SimulationContext, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{sim: sim, log: log}
}

// Routes registers every endpoint on the provided mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/balance", s.handleBalance)
	mux.HandleFunc("GET /api/contracts/{id}/progress", s.handleContractProgress)
	mux.HandleFunc("POST /api/contracts", s.handleOfferContract)
	mux.HandleFunc("DELETE /api/contracts/{id}", s.handleRemoveContract)
	mux.HandleFunc("POST /api/nodes", s.handlePlaceNode)
	mux.HandleFunc("DELETE /api/nodes/{id}", s.handleDeleteNode)
	mux.HandleFunc("POST /api/connections", s.handleConnect)
	mux.HandleFunc("DELETE /api/connections/{id}", s.handleDisconnect)
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   "datacenter-simulator",
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, balanceResponse{Balance: s.sim.Balance()})
}

type progressResponse struct {
	ContractID string              `json:"contract_id"`
	Progress   float64             `json:"progress"`
	Stage      core.ContractStage  `json:"stage"`
	State      model.ContractState `json:"state"`
}

func (s *Server) handleContractProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	progress, stage, ok := s.sim.ContractProgress(id)
	if !ok {
		http.Error(w, "contract not found", http.StatusNotFound)
		return
	}
	resp := progressResponse{ContractID: id, Progress: progress, Stage: stage}
	if c := s.sim.Engine().Contracts.Get(id); c != nil {
		resp.State = c.State
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOfferContract(w http.ResponseWriter, r *http.Request) {
	ctx, log := logging.WithRequestLogger(r.Context(), s.log)

	var req model.ContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid contract request: "+err.Error(), http.StatusBadRequest)
		return
	}

	c, accepted := s.sim.OfferContract(ctx, req)
	if !accepted {
		// ResourceInsufficient: the request is withheld, not failed.
		http.Error(w, "contract withheld: insufficient declared capacity", http.StatusConflict)
		return
	}
	log.Info(ctx, "contract accepted via api", logging.String("contract_id", c.ID))
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRemoveContract(w http.ResponseWriter, r *http.Request) {
	ctx, _ := logging.WithRequestLogger(r.Context(), s.log)
	if err := s.sim.RemoveContract(ctx, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placeNodeRequest struct {
	NodeID string `json:"node_id"`
	SpecID string `json:"spec_id"`
	RackID string `json:"rack_id,omitempty"`
}

func (s *Server) handlePlaceNode(w http.ResponseWriter, r *http.Request) {
	ctx, _ := logging.WithRequestLogger(r.Context(), s.log)

	var req placeNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid placement request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.NodeID == "" || req.SpecID == "" {
		http.Error(w, "node_id and spec_id are required", http.StatusBadRequest)
		return
	}

	n, err := s.sim.PlaceNode(ctx, req.NodeID, req.SpecID, req.RackID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	ctx, _ := logging.WithRequestLogger(r.Context(), s.log)
	if err := s.sim.DeleteNode(ctx, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type connectRequest struct {
	NodeA string          `json:"node_a"`
	NodeB string          `json:"node_b"`
	Class core.CableClass `json:"class"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, _ := logging.WithRequestLogger(r.Context(), s.log)

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid connection request: "+err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.sim.Connect(ctx, req.NodeA, req.NodeB, req.Class)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx, _ := logging.WithRequestLogger(r.Context(), s.log)
	if err := s.sim.Disconnect(ctx, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps the simulation's error taxonomy onto status codes:
// missing things are 404, everything else (validation rejections,
// unknown specs) is a 400 with the sentinel's message. All of these are
// transient, single-action failures.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrNodeNotFound),
		errors.Is(err, state.ErrConnNotFound),
		errors.Is(err, state.ErrContractNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

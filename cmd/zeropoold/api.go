// api.go - REST API for the pool daemon.
//
// Exposes the commitment tree (root, nodes, proofs, batch insertion,
// rollback), the transaction payload store and the proof engine over JSON
// endpoints. All handlers validate input before touching state and map the
// core error taxonomy onto HTTP status codes.

package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/rs/zerolog"

	"github.com/zeropoolnetwork/zeropool-go/merkle"
	"github.com/zeropoolnetwork/zeropool-go/prover"
	"github.com/zeropoolnetwork/zeropool-go/txstore"
	"github.com/zeropoolnetwork/zeropool-go/zeropool"
)

// Server wires the pool core into HTTP handlers.
type Server struct {
	tree     *merkle.Tree
	payloads *txstore.Store
	engine   *prover.Engine
	vks      map[prover.CircuitKind]groth16.VerifyingKey

	health  *HealthChecker
	metrics *MetricsCollector
	limiter *ClientRateLimiter
	log     zerolog.Logger
}

// NewServer builds the HTTP server over an open tree, payload store and
// proof engine.
func NewServer(tree *merkle.Tree, payloads *txstore.Store, engine *prover.Engine, vks map[prover.CircuitKind]groth16.VerifyingKey, cfg *Config, log zerolog.Logger) *Server {
	s := &Server{
		tree:     tree,
		payloads: payloads,
		engine:   engine,
		vks:      vks,
		health:   NewHealthChecker(version),
		metrics:  NewMetricsCollector(),
		limiter:  NewClientRateLimiter(cfg.MaxRequestsPerMinute, 1, time.Minute/time.Duration(cfg.MaxRequestsPerMinute)),
		log:      log,
	}
	s.registerHealthChecks()
	return s
}

// Handler returns the routed HTTP handler with rate limiting applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /root", s.handleRoot)
	mux.HandleFunc("GET /node", s.handleNode)
	mux.HandleFunc("GET /proof", s.handleProof)
	mux.HandleFunc("GET /commitment-proof", s.handleCommitmentProof)
	mux.HandleFunc("POST /proof/virtual", s.handleVirtualProofs)
	mux.HandleFunc("GET /leaves", s.handleGetLeaves)
	mux.HandleFunc("POST /leaves", s.handleAppendLeaves)
	mux.HandleFunc("POST /commitment", s.handleAddCommitment)
	mux.HandleFunc("POST /rollback", s.handleRollback)
	mux.HandleFunc("GET /transaction", s.handleGetTransaction)
	mux.HandleFunc("POST /transaction", s.handlePutTransaction)
	mux.HandleFunc("DELETE /transaction", s.handleDeleteTransaction)
	mux.HandleFunc("POST /prove/transfer", s.handleProveTransfer)
	mux.HandleFunc("POST /prove/tree", s.handleProveTree)
	mux.HandleFunc("POST /prove/delegated-deposit", s.handleProveDelegatedDeposit)
	mux.HandleFunc("POST /verify/transfer", s.verifyHandler(prover.KindTransfer))
	mux.HandleFunc("POST /verify/tree", s.verifyHandler(prover.KindTreeUpdate))
	mux.HandleFunc("POST /verify/delegated-deposit", s.verifyHandler(prover.KindDelegatedDeposit))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return s.rateLimit(mux)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.Allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		s.metrics.RecordRequest()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerHealthChecks() {
	s.health.RegisterComponent("tree", func() error {
		_, err := s.tree.Root()
		return err
	})
	s.health.RegisterComponent("transactions", func() error {
		count, err := s.payloads.Count()
		if err != nil {
			return err
		}
		// Payloads are keyed by leaf index; more payloads than leaves means
		// the two stores diverged.
		if next := s.tree.NextIndex(); count > next {
			return fmt.Errorf("%d payloads but only %d leaves", count, next)
		}
		return nil
	})
	s.health.RegisterComponent("prover", func() error {
		for _, kind := range []prover.CircuitKind{prover.KindTransfer, prover.KindTreeUpdate, prover.KindDelegatedDeposit} {
			if _, ok := s.engine.Params(kind); !ok {
				return fmt.Errorf("no parameters for %s", kind)
			}
		}
		return nil
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the core error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.metrics.RecordError()

	var (
		oor     *zeropool.OutOfRangeError
		decode  *zeropool.DecodeError
		witness *zeropool.WitnessError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &oor):
		status = http.StatusNotFound
	case errors.As(err, &decode), errors.As(err, &witness):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing query parameter %q", name)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %q: %w", name, err)
	}
	return v, nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	root, err := s.tree.Root()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.SetGauge(MetricTreeNextIndex, float64(s.tree.NextIndex()))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"root":       zeropool.HashToDecimal(root),
		"next_index": s.tree.NextIndex(),
	})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	height, err := queryUint(r, "height")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	index, err := queryUint(r, "index")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := s.tree.GetNode(uint32(height), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"value": zeropool.HashToDecimal(value)})
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	index, err := queryUint(r, "index")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	proof, err := s.tree.GetProof(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handleCommitmentProof(w http.ResponseWriter, r *http.Request) {
	index, err := queryUint(r, "index")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	proof, err := s.tree.GetCommitmentProof(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}

type hashesRequest struct {
	Hashes []zeropool.Hash `json:"hashes"`
}

func (s *Server) handleVirtualProofs(w http.ResponseWriter, r *http.Request) {
	var req hashesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	proofs, err := s.tree.GetProofAfterVirtual(req.Hashes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"proofs": proofs})
}

func (s *Server) handleGetLeaves(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	leaves, err := s.tree.GetLeavesAfter(offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"leaves": leaves})
}

func (s *Server) handleAppendLeaves(w http.ResponseWriter, r *http.Request) {
	var req hashesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	start := s.tree.NextIndex()
	if err := s.tree.AddHashes(start, req.Hashes); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Uint64("start", start).Int("count", len(req.Hashes)).Msg("leaves appended")
	s.writeJSON(w, http.StatusOK, map[string]uint64{"start_index": start, "next_index": s.tree.NextIndex()})
}

type commitmentRequest struct {
	Index uint64        `json:"index"`
	Hash  zeropool.Hash `json:"hash"`
}

func (s *Server) handleAddCommitment(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.tree.AddCommitment(req.Index, req.Hash); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Uint64("index", req.Index).Msg("commitment added")
	s.writeJSON(w, http.StatusOK, map[string]uint64{"next_index": s.tree.NextIndex()})
}

type rollbackRequest struct {
	Index uint64 `json:"index"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.tree.Rollback(req.Index); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.payloads.RemoveAllAfter(req.Index); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordRollback()
	s.log.Warn().Uint64("index", req.Index).Msg("rolled back")
	s.writeJSON(w, http.StatusOK, map[string]uint64{"next_index": s.tree.NextIndex()})
}

type transactionRequest struct {
	Index   uint64 `json:"index"`
	Payload string `json:"payload"`
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	index, err := queryUint(r, "index")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payload, ok, err := s.payloads.Get(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, transactionRequest{
		Index:   index,
		Payload: base64.StdEncoding.EncodeToString(payload),
	})
}

func (s *Server) handlePutTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid payload encoding: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.payloads.Add(req.Index, payload); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"index": req.Index})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	index, err := queryUint(r, "index")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.payloads.Delete(index); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferProveRequest struct {
	Public struct {
		Root          zeropool.Hash `json:"root"`
		Nullifier     zeropool.Hash `json:"nullifier"`
		OutCommitment zeropool.Hash `json:"out_commitment"`
	} `json:"public"`
	Secret struct {
		Sk       zeropool.Hash `json:"sk"`
		InValue  zeropool.Hash `json:"in_value"`
		InRho    zeropool.Hash `json:"in_rho"`
		InRand   zeropool.Hash `json:"in_rand"`
		Proof    *merkle.Proof `json:"proof"`
		OutValue zeropool.Hash `json:"out_value"`
		OutPk    zeropool.Hash `json:"out_pk"`
		OutRho   zeropool.Hash `json:"out_rho"`
		OutRand  zeropool.Hash `json:"out_rand"`
	} `json:"secret"`
}

func (s *Server) handleProveTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferProveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	pub := &prover.TransferPub{
		Root:          req.Public.Root,
		Nullifier:     req.Public.Nullifier,
		OutCommitment: req.Public.OutCommitment,
	}
	sec := &prover.TransferSec{
		Sk:       req.Secret.Sk,
		InValue:  req.Secret.InValue,
		InRho:    req.Secret.InRho,
		InRand:   req.Secret.InRand,
		Proof:    req.Secret.Proof,
		OutValue: req.Secret.OutValue,
		OutPk:    req.Secret.OutPk,
		OutRho:   req.Secret.OutRho,
		OutRand:  req.Secret.OutRand,
	}
	s.respondProof(w, r, s.engine.ProveTransferAsync(r.Context(), pub, sec))
}

type treeProveRequest struct {
	Public struct {
		RootBefore zeropool.Hash `json:"root_before"`
		RootAfter  zeropool.Hash `json:"root_after"`
		Commitment zeropool.Hash `json:"commitment"`
	} `json:"public"`
	Secret struct {
		Proof *merkle.Proof `json:"proof"`
	} `json:"secret"`
}

func (s *Server) handleProveTree(w http.ResponseWriter, r *http.Request) {
	var req treeProveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	pub := &prover.TreePub{
		RootBefore: req.Public.RootBefore,
		RootAfter:  req.Public.RootAfter,
		Commitment: req.Public.Commitment,
	}
	sec := &prover.TreeSec{Proof: req.Secret.Proof}
	s.respondProof(w, r, s.engine.ProveTreeAsync(r.Context(), pub, sec))
}

type delegatedDepositProveRequest struct {
	Public struct {
		OutCommitment zeropool.Hash `json:"out_commitment"`
	} `json:"public"`
	Secret struct {
		Deposits []prover.DelegatedDeposit `json:"deposits"`
	} `json:"secret"`
}

func (s *Server) handleProveDelegatedDeposit(w http.ResponseWriter, r *http.Request) {
	var req delegatedDepositProveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	pub := &prover.DelegatedDepositPub{OutCommitment: req.Public.OutCommitment}
	sec := &prover.DelegatedDepositSec{Deposits: req.Secret.Deposits}
	s.respondProof(w, r, s.engine.ProveDelegatedDepositAsync(r.Context(), pub, sec))
}

func (s *Server) respondProof(w http.ResponseWriter, r *http.Request, task *prover.Task) {
	start := time.Now()
	proof, err := task.Wait(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordProofGeneration(time.Since(start))
	s.writeJSON(w, http.StatusOK, proof)
}

func (s *Server) verifyHandler(kind prover.CircuitKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vk, ok := s.vks[kind]
		if !ok {
			http.Error(w, fmt.Sprintf("no verifying key for %s", kind), http.StatusInternalServerError)
			return
		}
		var proof prover.Proof
		if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
			http.Error(w, fmt.Sprintf("invalid proof: %v", err), http.StatusBadRequest)
			return
		}
		valid, err := prover.Verify(vk, &proof)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus != Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if count, err := s.payloads.Count(); err == nil {
		s.metrics.SetGauge(MetricPayloadCount, float64(count))
	}
	s.metrics.SetGauge(MetricTreeNextIndex, float64(s.tree.NextIndex()))
	s.writeJSON(w, http.StatusOK, s.metrics.Summary())
}

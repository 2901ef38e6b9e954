// Command settlement-service is a development stand-in for the settlement
// collaborator. It accepts the same transfer contract the ledger posts and
// can be told to decline or fail so client behavior is easy to exercise:
//
//	MOCK_ADDR            listen address (default :9090)
//	MOCK_DECLINE_PAYERS  comma-separated payers declined with 402
//	MOCK_FAIL_RATE       percent of requests answered 500 (default 0)
//	MOCK_LATENCY         artificial delay before answering (default 0)
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type transferRequest struct {
	Amount uint64 `json:"amount"`
	Payer  string `json:"payer"`
	Payee  string `json:"payee"`
}

type server struct {
	log      *slog.Logger
	declined map[string]bool
	failRate int
	latency  time.Duration
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	s := &server{
		log:      log,
		declined: map[string]bool{},
		failRate: envInt("MOCK_FAIL_RATE", 0),
		latency:  envDuration("MOCK_LATENCY", 0),
	}
	for _, p := range strings.Split(os.Getenv("MOCK_DECLINE_PAYERS"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			s.declined[p] = true
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transfers", s.handleTransfer)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := os.Getenv("MOCK_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	log.Info("mock settlement service listening", "addr", addr,
		"fail_rate", s.failRate, "declined_payers", len(s.declined))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed transfer"})
		return
	}

	if s.failRate > 0 && rand.IntN(100) < s.failRate {
		s.log.Warn("simulated failure", "payer", req.Payer)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "simulated outage"})
		return
	}

	if s.declined[req.Payer] {
		s.log.Info("transfer declined", "payer", req.Payer, "amount", req.Amount)
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient funds"})
		return
	}

	s.log.Info("transfer settled", "payer", req.Payer, "payee", req.Payee, "amount", req.Amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

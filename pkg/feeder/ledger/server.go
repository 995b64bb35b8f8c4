package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/protocol"
)

// Handler serves the ledger API on top of a LocalLedger, so remote
// keepers can submit through HTTPClient.
type Handler struct {
	ledger *LocalLedger
}

// NewHandler returns the ledger API for l.
func NewHandler(l *LocalLedger) *Handler {
	return &Handler{ledger: l}
}

// Register mounts the ledger routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(CommandsPath, h.handleCommand)
	mux.HandleFunc(AccountsPath, h.handleAccount)
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Kind: protocol.KindMalformed, Error: err.Error()})
		return
	}
	encoded, sig, err := req.Decode()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Kind: protocol.KindMalformed, Error: err.Error()})
		return
	}
	receipt, err := h.ledger.Execute(encoded, sig)
	if err != nil {
		kind := protocol.KindOf(err)
		writeJSON(w, StatusFor(kind), ErrorResponse{Kind: kind, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, AccountsPath)
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Kind: protocol.KindMalformed, Error: "invalid address"})
		return
	}
	addr := common.HexToAddress(raw)
	b, err := h.ledger.GetAccount(r.Context(), addr)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Kind: protocol.KindMissingAccount, Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Kind: protocol.KindTransport, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Address: addr, Data: hexutil.Encode(b)})
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(k protocol.Kind) int {
	switch k {
	case protocol.KindAlreadyInitialized:
		return http.StatusConflict
	case protocol.KindUnauthorized:
		return http.StatusForbidden
	case protocol.KindCircuitOpen:
		return http.StatusLocked
	case protocol.KindTransport:
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

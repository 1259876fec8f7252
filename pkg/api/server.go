package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowdex/pkg/exchange"
	"github.com/uhyunpark/escrowdex/pkg/ledger"
)

// Server exposes the settlement boundary over REST and streams events over
// WebSocket. Caller identities on mutating routes come from the request body:
// the server sits behind a trusted gateway, and order authorization is still
// enforced cryptographically by the engine.
type Server struct {
	engine *exchange.Engine
	ledger *ledger.Manager
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(engine *exchange.Engine, led *ledger.Manager, logger *zap.SugaredLogger) *Server {
	s := &Server{
		engine: engine,
		ledger: led,
		router: mux.NewRouter(),
		hub:    NewHub(),
		log:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Settlement operations
	api.HandleFunc("/trade", s.handleTrade).Methods("POST")
	api.HandleFunc("/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/orders", s.handleRegisterOrder).Methods("POST")

	// Order reads
	api.HandleFunc("/orders/available", s.handleAvailableAmount).Methods("POST")
	api.HandleFunc("/orders/cantrade", s.handleCanTrade).Methods("POST")
	api.HandleFunc("/fills/{hash}", s.handleFilled).Methods("GET")
	api.HandleFunc("/ordered/{maker}/{hash}", s.handleIsOrdered).Methods("GET")

	// Escrow ledger
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawal", s.handleWithdrawal).Methods("POST")
	api.HandleFunc("/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/balances/{asset}/{owner}", s.handleBalance).Methods("GET")

	// Owner surplus reclamation
	api.HandleFunc("/reclaim", s.handleReclaim).Methods("POST")

	// Unsolicited native transfers are rejected explicitly.
	api.HandleFunc("/transfer", s.handleDirectTransfer).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start wires the engine's event feed to the hub and serves until the
// listener fails.
func (s *Server) Start(addr string, origins []string) error {
	go s.hub.Run()
	s.engine.Events = s

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Publish implements exchange.Sink: settlement events go to the type-named
// channel and the catch-all "events" channel.
func (s *Server) Publish(ev exchange.Event) {
	msg := EventMessage{
		Type:      string(ev.Type),
		Hash:      ev.Hash.Hex(),
		Maker:     ev.Maker.Hex(),
		Timestamp: time.Now().UnixMilli(),
	}
	if ev.Taker != (common.Address{}) {
		msg.Taker = ev.Taker.Hex()
	}
	if ev.Delta != nil {
		msg.Delta = ev.Delta.String()
		msg.MakerAsset = ev.MakerAsset.Hex()
		msg.TakerAsset = ev.TakerAsset.Hex()
	}
	if ev.Filled != nil {
		msg.Filled = ev.Filled.String()
	}

	s.hub.BroadcastToChannel("events", msg)
	s.hub.BroadcastToChannel(string(ev.Type), msg)
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	order, err := s.decodeOrder(req.OrderWire)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_order", err.Error())
		return
	}
	taker, ok := parseAddress(req.Taker)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid taker address")
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	delta, err := s.engine.Trade(order, sig, amount, taker)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	hash := order.Hash()
	respondJSON(w, TradeResponse{
		Hash:   hash.Hex(),
		Delta:  delta.String(),
		Filled: s.engine.Filled(hash).String(),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	order, err := s.decodeOrder(req.OrderWire)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_order", err.Error())
		return
	}
	caller, ok := parseAddress(req.Maker)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid maker address")
		return
	}

	if err := s.engine.Cancel(order, caller); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "cancelled"})
}

func (s *Server) handleRegisterOrder(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	order, err := s.decodeOrder(req.OrderWire)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_order", err.Error())
		return
	}
	caller, ok := parseAddress(req.Maker)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid maker address")
		return
	}

	if err := s.engine.Order(order, caller); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ordered"})
}

func (s *Server) handleAvailableAmount(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	order, err := s.decodeOrder(req.OrderWire)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_order", err.Error())
		return
	}
	respondJSON(w, AmountResponse{Amount: s.engine.AvailableAmount(order).String()})
}

func (s *Server) handleCanTrade(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	order, err := s.decodeOrder(req.OrderWire)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_order", err.Error())
		return
	}
	sig, err := parseSignature(req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	respondJSON(w, BoolResponse{Result: s.engine.CanTrade(order, sig)})
}

func (s *Server) handleFilled(w http.ResponseWriter, r *http.Request) {
	hashStr := mux.Vars(r)["hash"]
	hash := common.HexToHash(hashStr)
	respondJSON(w, AmountResponse{Amount: s.engine.Filled(hash).String()})
}

func (s *Server) handleIsOrdered(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	maker, ok := parseAddress(vars["maker"])
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid maker address")
		return
	}
	hash := common.HexToHash(vars["hash"])
	respondJSON(w, BoolResponse{Result: s.engine.IsOrdered(maker, hash)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	owner, asset, amount, ok := s.decodeBalanceRequest(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Deposit(owner, asset, amount); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "deposit_failed", err.Error())
		return
	}
	respondJSON(w, StatusResponse{Status: "deposited"})
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	owner, asset, amount, ok := s.decodeBalanceRequest(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Withdraw(owner, asset, amount); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "withdrawal_failed", err.Error())
		return
	}
	respondJSON(w, StatusResponse{Status: "withdrawn"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid owner address")
		return
	}

	// Default spender is this exchange instance.
	spender := s.engine.Address()
	if req.Spender != "" {
		spender, ok = parseAddress(req.Spender)
		if !ok {
			respondError(w, http.StatusBadRequest, "bad_request", "invalid spender address")
			return
		}
	}

	if err := s.ledger.Approve(owner, spender); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "approve_failed", err.Error())
		return
	}
	respondJSON(w, StatusResponse{Status: "approved"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset, ok := parseAddress(vars["asset"])
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid asset address")
		return
	}
	owner, ok := parseAddress(vars["owner"])
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid owner address")
		return
	}
	respondJSON(w, AmountResponse{Amount: s.ledger.BalanceOf(asset, owner).String()})
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	var req ReclaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	asset, ok := parseAddress(req.Asset)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid asset address")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid caller address")
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}

	if err := s.engine.Withdraw(asset, amount, caller); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "withdrawn"})
}

func (s *Server) handleDirectTransfer(w http.ResponseWriter, r *http.Request) {
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	from, _ := parseAddress(req.Owner)
	amount, ok := parseBig(req.Amount)
	if !ok {
		amount = new(big.Int)
	}
	err := s.engine.ReceiveNative(from, amount)
	s.respondEngineError(w, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func (s *Server) decodeBalanceRequest(w http.ResponseWriter, r *http.Request) (owner, asset common.Address, amount *big.Int, ok bool) {
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	owner, ok = parseAddress(req.Owner)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid owner address")
		return
	}
	if req.Asset == "" {
		asset = ledger.NativeAsset
	} else if asset, ok = parseAddress(req.Asset); !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid asset address")
		return
	}
	amount, ok = parseBig(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}
	return owner, asset, amount, true
}

func (s *Server) decodeOrder(wire OrderWire) (*exchange.Order, error) {
	addresses := make([]common.Address, 0, len(wire.Addresses))
	for _, a := range wire.Addresses {
		addr, ok := parseAddress(a)
		if !ok {
			return nil, errors.New("invalid address: " + a)
		}
		addresses = append(addresses, addr)
	}
	values := make([]*big.Int, 0, len(wire.Values))
	for _, v := range wire.Values {
		val, ok := parseBig(v)
		if !ok {
			return nil, errors.New("invalid value: " + v)
		}
		values = append(values, val)
	}
	return exchange.OrderFromWire(addresses, values, s.engine.Address())
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	kind, status := classifyError(err)
	respondError(w, status, kind, err.Error())
}

// classifyError maps engine failure kinds to stable API error codes.
func classifyError(err error) (string, int) {
	switch {
	case errors.Is(err, exchange.ErrAuthorizationFailed):
		return "authorization_failed", http.StatusForbidden
	case errors.Is(err, exchange.ErrSelfTrade):
		return "self_trade_rejected", http.StatusForbidden
	case errors.Is(err, exchange.ErrOrderExpired):
		return "order_expired", http.StatusConflict
	case errors.Is(err, exchange.ErrOrderExhausted):
		return "order_exhausted", http.StatusConflict
	case errors.Is(err, exchange.ErrInsufficientLiquidity):
		return "insufficient_liquidity", http.StatusConflict
	case errors.Is(err, exchange.ErrUnauthorizedCancel):
		return "unauthorized_cancel", http.StatusForbidden
	case errors.Is(err, exchange.ErrDuplicateRegistration):
		return "duplicate_registration", http.StatusConflict
	case errors.Is(err, exchange.ErrDirectTransferRejected):
		return "direct_transfer_rejected", http.StatusForbidden
	case errors.Is(err, exchange.ErrUnauthorizedWithdraw):
		return "unauthorized_withdraw", http.StatusForbidden
	case errors.Is(err, exchange.ErrMalformedOrder):
		return "malformed_order", http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotApproved):
		return "not_approved", http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance", http.StatusConflict
	default:
		return "internal", http.StatusInternalServerError
	}
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseBig(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}

// parseSignature decodes the 0x-hex signature blob; empty means the on-chain
// registration path.
func parseSignature(s string) ([]byte, error) {
	if s == "" || s == "0x" || s == "0x0" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, kind string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: kind, Message: message})
}

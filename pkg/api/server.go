package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/metrics"
	"github.com/uhyunpark/objmarket/pkg/txflow"
	"github.com/uhyunpark/objmarket/pkg/util"
	"github.com/uhyunpark/objmarket/pkg/views"
)

const maxBodyBytes = 1 << 20

// Backend is what the HTTP surface reads from and submits to.
type Backend interface {
	// Listings returns the marketplace view, refetching first when refresh is set.
	Listings(ctx context.Context, refresh bool) views.State[[]index.ListingRecord]
	OwnedItems(ctx context.Context, owner string) ([]index.OwnedItemRecord, error)
	Balance(ctx context.Context, owner string) (views.BalanceRecord, error)
	// Submit starts action for the connected signer.
	Submit(ctx context.Context, action txflow.Action) *txflow.Lifecycle
	Lifecycle(id string) (*txflow.Lifecycle, bool)
	RecentLifecycles(limit int) []txflow.Snapshot
	ConfigStatus() ConfigStatus
}

type Options struct {
	Bus            *events.Bus
	Metrics        *metrics.Collector
	Logger         *zap.SugaredLogger
	AllowedOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	backend Backend
	router  *mux.Router
	hub     *Hub
	metrics *metrics.Collector
	origins []string
	log     *zap.SugaredLogger

	untap   func()
	httpSrv *http.Server
}

func NewServer(backend Backend, opts Options) *Server {
	log := util.Sugar(opts.Logger).With("component", "api")
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	s := &Server{
		backend: backend,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		metrics: opts.Metrics,
		origins: origins,
		log:     log,
		untap:   func() {},
	}
	if opts.Bus != nil {
		s.untap = s.hub.BridgeBus(opts.Bus)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/listings", s.handleGetListings).Methods("GET")

	api.HandleFunc("/accounts/{address}/items", s.handleGetItems).Methods("GET")
	api.HandleFunc("/accounts/{address}/balance", s.handleGetBalance).Methods("GET")

	api.HandleFunc("/actions/{kind}", s.handleSubmitAction).Methods("POST")
	api.HandleFunc("/lifecycles", s.handleListLifecycles).Methods("GET")
	api.HandleFunc("/lifecycles/{id}", s.handleGetLifecycle).Methods("GET")

	api.HandleFunc("/config/status", s.handleConfigStatus).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the full handler chain: metrics, CORS, router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	h := c.Handler(s.router)
	if s.metrics != nil {
		h = s.metrics.InstrumentHandler(h)
	}
	return h
}

// Start runs the hub and serves until Shutdown.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("api_server_starting", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.untap()
	s.hub.Stop()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Hub exposes the websocket hub, mostly so tests can run it.
func (s *Server) Hub() *Hub { return s.hub }

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetListings(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	respondJSON(w, listingsResponse(s.backend.Listings(r.Context(), refresh)))
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	items, err := s.backend.OwnedItems(r.Context(), addr)
	if txflow.IsConfiguration(err) {
		respondError(w, http.StatusServiceUnavailable, err.Error(), "")
		return
	}
	if err != nil {
		s.log.Warnw("owned_items_failed", "address", addr, "err", err)
		respondError(w, http.StatusBadGateway, "Failed to fetch NFTs", err.Error())
		return
	}
	if items == nil {
		items = []index.OwnedItemRecord{}
	}
	respondJSON(w, ItemsResponse{Address: addr, Items: items})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	bal, err := s.backend.Balance(r.Context(), addr)
	if err != nil {
		s.log.Warnw("balance_failed", "address", addr, "err", err)
		respondError(w, http.StatusBadGateway, "Failed to fetch balance", err.Error())
		return
	}
	respondJSON(w, BalanceResponse{Address: addr, BaseUnits: bal.BaseUnits, Display: bal.Display})
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	kind := txflow.ActionKind(mux.Vars(r)["kind"])
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	action, err := ParseAction(kind, body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid action", err.Error())
		return
	}

	lc := s.backend.Submit(r.Context(), action)
	s.log.Infow("action_submitted", "lifecycle", lc.ID(), "action", kind)

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		respondJSONStatus(w, http.StatusAccepted, lc.Snapshot())
		return
	}
	snap, err := lc.Wait(r.Context())
	if err != nil {
		respondJSONStatus(w, http.StatusAccepted, snap)
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleListLifecycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	list := s.backend.RecentLifecycles(limit)
	if list == nil {
		list = []txflow.Snapshot{}
	}
	respondJSON(w, LifecycleList{Lifecycles: list})
}

func (s *Server) handleGetLifecycle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	lc, ok := s.backend.Lifecycle(id)
	if !ok {
		respondError(w, http.StatusNotFound, "lifecycle not found", id)
		return
	}
	respondJSON(w, lc.Snapshot())
}

func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	st := s.backend.ConfigStatus()
	if st.Problems == nil {
		st.Problems = []string{}
	}
	respondJSON(w, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ParseAction decodes a request body into the action named by kind.
func ParseAction(kind txflow.ActionKind, body []byte) (txflow.Action, error) {
	decode := func(v any) error {
		if len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		return nil
	}

	switch kind {
	case txflow.ActionMint:
		var a txflow.MintAction
		err := decode(&a)
		return a, err
	case txflow.ActionList:
		var a txflow.ListAction
		err := decode(&a)
		return a, err
	case txflow.ActionBuy:
		var a txflow.BuyAction
		err := decode(&a)
		return a, err
	case txflow.ActionCancel:
		var a txflow.CancelAction
		err := decode(&a)
		return a, err
	case txflow.ActionWithdraw:
		return txflow.WithdrawAction{}, nil
	}
	return nil, fmt.Errorf("unknown action %q", kind)
}

// ==============================
// Helper Functions
// ==============================

func addressVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr := mux.Vars(r)["address"]
	if !crypto.IsValidAddress(addr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return "", false
	}
	return crypto.NormalizeAddress(addr), true
}

func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSONStatus(w, status, ErrorResponse{Error: error, Message: message})
}

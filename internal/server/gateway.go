package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"FightPool/internal/observability"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 64 << 10

// HTTPConfig configures the JSON gateway.
type HTTPConfig struct {
	Addr      string
	RateLimit float64 // requests per second per client, <= 0 disables
	RateBurst int
}

// HTTPGateway serves the HTTP/JSON surface, the notification stream and
// the health probes.
type HTTPGateway struct {
	api        *API
	hub        *Hub
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	limiter    *clientLimiter
	httpServer *http.Server
	logger     zerolog.Logger
}

func NewHTTPGateway(cfg HTTPConfig, api *API, hub *Hub, health *observability.HealthChecker, metrics *observability.Metrics) (*HTTPGateway, error) {
	g := &HTTPGateway{
		api:     api,
		hub:     hub,
		health:  health,
		metrics: metrics,
		logger:  observability.NewLogger("http"),
	}
	if cfg.RateLimit > 0 {
		g.limiter = newClientLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	mux := runtime.NewServeMux()
	if err := g.registerRoutes(mux); err != nil {
		return nil, err
	}

	root := http.NewServeMux()
	if health != nil {
		root.HandleFunc("/healthz", health.LivenessHandler)
		root.HandleFunc("/readyz", health.ReadinessHandler)
	}
	root.Handle("/", mux)

	g.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Handler exposes the routed handler, mainly for tests.
func (g *HTTPGateway) Handler() http.Handler {
	return g.httpServer.Handler
}

func (g *HTTPGateway) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method, pattern string
		h               runtime.HandlerFunc
	}{
		{"POST", "/v1/commands/{command}", g.execute},

		{"GET", "/v1/config", g.getConfig},
		{"GET", "/v1/matches", g.listMatches},
		{"GET", "/v1/matches/{match_id}", g.getMatch},
		{"GET", "/v1/matches/{match_id}/bets", g.listBets},
		{"GET", "/v1/matches/{match_id}/bets/{bettor}", g.getBet},
		{"GET", "/v1/matches/{match_id}/distribution", g.getDistribution},
		{"GET", "/v1/bettors/{bettor}/bets", g.listBettorBets},
		{"GET", "/v1/wallets/{wallet}/balance", g.walletBalance},
		{"GET", "/v1/vaults/{match_id}/balance", g.vaultBalance},
		{"GET", "/v1/settlements", g.settlements},
		{"GET", "/v1/journal", g.journal},
		{"GET", "/v1/integrity", g.integrity},

		{"POST", "/v1/admin/snapshot", g.takeSnapshot},
		{"POST", "/v1/admin/rebuild", g.rebuild},
		{"GET", "/v1/admin/log", g.logInfo},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, g.observe(rt.pattern, rt.h)); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	if g.hub != nil {
		stream := func(w http.ResponseWriter, r *http.Request, _ map[string]string) { g.hub.HandleWS(w, r) }
		if err := mux.HandlePath("GET", "/v1/stream", g.throttle("/v1/stream", stream)); err != nil {
			return fmt.Errorf("register stream: %w", err)
		}
	}
	return nil
}

// Start serves until ctx is done.
func (g *HTTPGateway) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		g.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.httpServer.Shutdown(shutdownCtx)
	}()

	if g.limiter != nil {
		go g.limiter.sweepEvery(ctx, time.Minute)
	}

	g.logger.Info().Str("addr", g.httpServer.Addr).Msg("HTTP gateway listening")
	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (g *HTTPGateway) observe(route string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return g.throttle(route, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, params)
		if g.metrics != nil {
			g.metrics.QueryRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			g.metrics.QueryDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func (g *HTTPGateway) throttle(route string, h runtime.HandlerFunc) runtime.HandlerFunc {
	if g.limiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if !g.limiter.allow(clientKey(r)) {
			if g.metrics != nil {
				g.metrics.RateLimited.WithLabelValues(route).Inc()
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		h(w, r, params)
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{limit: limit, burst: burst, clients: make(map[string]*limiterEntry)}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

func (l *clientLimiter) sweep(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *clientLimiter) sweepEvery(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(3 * every)
		}
	}
}

// --- handlers ---

func (g *HTTPGateway) execute(w http.ResponseWriter, r *http.Request, params map[string]string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, invalidArg("read body: %v", err))
		return
	}
	respond(w)(g.api.Execute(r.Context(), &CommandRequest{Command: params["command"], Payload: body}, "http"))
}

func (g *HTTPGateway) getConfig(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w)(g.api.GetConfig(r.Context(), &Empty{}))
}

func (g *HTTPGateway) listMatches(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	req := &ListMatchesRequest{Status: q.Get("status")}
	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, err)
		return
	}
	if req.BeforeCreatedAt, err = int64Param("before_created_at", q.Get("before_created_at")); err != nil {
		writeError(w, err)
		return
	}
	respond(w)(g.api.ListMatches(r.Context(), req))
}

func (g *HTTPGateway) getMatch(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w)(g.api.GetMatch(r.Context(), &MatchRequest{MatchID: params["match_id"]}))
}

func (g *HTTPGateway) listBets(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w)(g.api.ListBets(r.Context(), &MatchRequest{MatchID: params["match_id"]}))
}

func (g *HTTPGateway) getBet(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w)(g.api.GetBet(r.Context(), &BetRequest{MatchID: params["match_id"], Bettor: params["bettor"]}))
}

func (g *HTTPGateway) getDistribution(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w)(g.api.GetDistribution(r.Context(), &MatchRequest{MatchID: params["match_id"]}))
}

func (g *HTTPGateway) listBettorBets(w http.ResponseWriter, r *http.Request, params map[string]string) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w)(g.api.ListBettorBets(r.Context(), &BettorBetsRequest{Bettor: params["bettor"], Limit: limit}))
}

func (g *HTTPGateway) walletBalance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w)(g.api.GetBalance(r.Context(), &BalanceRequest{Wallet: params["wallet"]}))
}

func (g *HTTPGateway) vaultBalance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	respond(w)(g.api.GetBalance(r.Context(), &BalanceRequest{Vault: params["match_id"]}))
}

func (g *HTTPGateway) settlements(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	req := &SettlementsRequest{MatchID: q.Get("match_id"), Recipient: q.Get("recipient")}
	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, err)
		return
	}
	if req.BeforeSequence, err = int64Param("before_sequence", q.Get("before_sequence")); err != nil {
		writeError(w, err)
		return
	}
	respond(w)(g.api.GetSettlements(r.Context(), req))
}

// journal takes the account path as a query parameter: account paths
// contain ':' which the gateway router reads as a custom verb.
func (g *HTTPGateway) journal(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	req := &JournalRequest{Account: q.Get("account")}
	var err error
	if req.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, err)
		return
	}
	if req.AfterSequence, err = int64Param("after_sequence", q.Get("after_sequence")); err != nil {
		writeError(w, err)
		return
	}
	respond(w)(g.api.GetJournalHistory(r.Context(), req))
}

func (g *HTTPGateway) integrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w)(g.api.VerifyIntegrity(r.Context(), &Empty{}))
}

func (g *HTTPGateway) takeSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w)(g.api.TakeSnapshot(r.Context(), &Empty{}))
}

func (g *HTTPGateway) rebuild(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w)(g.api.RebuildProjections(r.Context(), &Empty{}))
}

func (g *HTTPGateway) logInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	respond(w)(g.api.GetEventLogInfo(r.Context(), &Empty{}))
}

// --- helpers ---

// respond writes either the value or the error of an API call.
func respond(w http.ResponseWriter) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	_, status := classify(err)
	writeJSON(w, status, newErrorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, invalidArg("invalid limit %q", s)
	}
	return n, nil
}

func int64Param(name, s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, invalidArg("invalid %s %q", name, s)
	}
	return &n, nil
}

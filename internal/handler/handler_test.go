package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tradingarena/internal/broadcast"
	"tradingarena/internal/cycle"
	"tradingarena/internal/models"
	"tradingarena/internal/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

type fakeCycle struct {
	startErr   error
	lastTicker string
	state      models.CycleState
}

func (f *fakeCycle) Start(ctx context.Context, ticker string) (models.CycleState, error) {
	f.lastTicker = ticker
	if f.startErr != nil {
		return models.CycleState{}, f.startErr
	}
	f.state.Status = models.CycleStockSelection
	return f.state, nil
}

func (f *fakeCycle) Stop(ctx context.Context) (models.CycleState, error) {
	f.state.Status = models.CycleStopped
	return f.state, nil
}

func (f *fakeCycle) State(ctx context.Context) (models.CycleState, error) {
	return f.state, nil
}

func TestTrading_StartStop(t *testing.T) {
	fc := &fakeCycle{state: models.InitialCycleState()}
	r := gin.New()
	(&TradingHandler{Cycle: fc}).Register(r)

	w, env := do(t, r, http.MethodPost, "/api/trading/start-cycle", `{"ticker":"nvda"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NVDA", fc.lastTicker)
	assert.JSONEq(t, `{"success":true,"status":"stock_selection"}`, string(env.Data))

	w, _ = do(t, r, http.MethodPost, "/api/trading/start-cycle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", fc.lastTicker)

	w, env = do(t, r, http.MethodPost, "/api/trading/stop-cycle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"status":"stopped"}`, string(env.Data))

	w, env = do(t, r, http.MethodGet, "/api/trading/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"stopped"`)
}

func TestTrading_StartFailureIsInternal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := gin.New()
	(&TradingHandler{Cycle: &fakeCycle{startErr: errors.New("store down")}, Logger: zap.New(core)}).Register(r)

	w, env := do(t, r, http.MethodPost, "/api/trading/start-cycle", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to start trading cycle", env.Message)
	assert.NotContains(t, w.Body.String(), "store down")

	entries := logs.FilterMessage("failed to start trading cycle").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/trading/start-cycle", entries[0].ContextMap()["path"])
}

func TestTrading_StartConflictAndBadInput(t *testing.T) {
	r := gin.New()
	(&TradingHandler{Cycle: &fakeCycle{startErr: cycle.ErrCycleRunning}}).Register(r)

	w, env := do(t, r, http.MethodPost, "/api/trading/start-cycle", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusConflict, env.Code)

	w, _ = do(t, r, http.MethodPost, "/api/trading/start-cycle", `{"ticker":"not a ticker"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/trading/start-cycle", `{"ticker":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeFeed struct{}

func (fakeFeed) RecentBars(ctx context.Context, ticker string) []models.Candle {
	return []models.Candle{{Time: 1, Close: 1}, {Time: 2, Close: 2}}
}

func (fakeFeed) Quote(ctx context.Context, ticker string) models.Quote {
	return models.Quote{Price: 12.5, Change: 0.5, ChangePercent: 4.17}
}

type tickerRecorder struct{ last string }

func (t *tickerRecorder) SetTicker(s string) { t.last = s }

func TestMarket_CandlesAndQuote(t *testing.T) {
	rec := &tickerRecorder{}
	r := gin.New()
	(&MarketHandler{Feed: fakeFeed{}, Stream: rec}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/market/candles/tsla", "")
	require.Equal(t, http.StatusOK, w.Code)
	var payload candlesResponse
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "TSLA", payload.Ticker)
	assert.Len(t, payload.Candles, 2)
	assert.Equal(t, "TSLA", rec.last)

	w, env = do(t, r, http.MethodGet, "/api/market/quote/tsla", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"price":12.5,"change":0.5,"changePercent":4.17}`, string(env.Data))

	w, _ = do(t, r, http.MethodGet, "/api/market/quote/%24%24%24", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrades_LimitAndOrder(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, tk := range []string{"AAPL", "MSFT", "NVDA"} {
		_, err := store.CreateTrade(ctx, models.Trade{Ticker: tk, Action: models.ActionBuy, Quantity: 10, Strategy: "Scalping"})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	r := gin.New()
	(&TradesHandler{Repo: store}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/trades?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var trades []models.Trade
	require.NoError(t, json.Unmarshal(env.Data, &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, "NVDA", trades[0].Ticker)
	assert.Equal(t, float64(2), env.Meta["limit"])

	_, env = do(t, r, http.MethodGet, "/api/trades?limit=abc", "")
	assert.Equal(t, float64(defaultTradeLimit), env.Meta["limit"])
}

func TestWeights_ListAndOverride(t *testing.T) {
	store := memory.New()
	r := gin.New()
	(&WeightsHandler{Repo: store}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/ai/weights", "")
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.AgentWeight
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 4)

	w, env = do(t, r, http.MethodPost, "/api/ai/weights/Grok", `{"stockWeight":2.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.AgentWeight
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.AgentGrok, got.Agent)
	assert.Equal(t, 2.5, got.SelectionWeight)
	assert.Equal(t, 1.0, got.StrategyWeight)

	w, _ = do(t, r, http.MethodPost, "/api/ai/weights/claude", `{"stockWeight":2}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/ai/weights/grok", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebate_List(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.CreateDebateMessage(ctx, models.DebateMessage{Agent: models.AgentGemini, Message: "I propose AAPL. x", MessageType: models.MessageProposal})
	require.NoError(t, err)
	r := gin.New()
	(&DebateHandler{Repo: store}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/debate/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []models.DebateMessage
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, models.AgentGemini, msgs[0].Agent)
}

func TestHealth_MemoryStoreReady(t *testing.T) {
	r := gin.New()
	(&HealthHandler{}).Register(r)
	w, _ := do(t, r, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"memory"`)
	w, _ = do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_FailingCheckNotReady(t *testing.T) {
	r := gin.New()
	(&HealthHandler{Store: "postgres", Checks: []ReadinessCheck{
		{Name: "postgres", Ping: func(context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }},
	}}).Register(r)

	w, _ := do(t, r, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unreachable"}, body.Checks)
}

func TestMetrics_Exposed(t *testing.T) {
	r := gin.New()
	(&MetricsHandler{}).Register(r)
	w, _ := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "arena_"))
}

func TestStream_SnapshotThenEvents(t *testing.T) {
	hub := broadcast.NewHub(16, nil)
	hub.SetSnapshot(func() (broadcast.Event, bool) {
		return broadcast.Event{Type: broadcast.EventCycleStatus, Data: models.InitialCycleState()}, true
	})
	r := gin.New()
	(&StreamHandler{Hub: hub, WriteTimeout: time.Second}).Register(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var first map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, "cycle_status", first["type"])
	assert.Equal(t, "idle", first["data"].(map[string]any)["status"])
	assert.NotEmpty(t, first["timestamp"])

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(broadcast.EventTradeExecuted, map[string]any{"ticker": "AAPL"})

	var next map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &next))
	assert.Equal(t, "trade_executed", next["type"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tradingarena/internal/broadcast"
	"tradingarena/internal/config"
	"tradingarena/internal/decision"
	"tradingarena/internal/models"
	"tradingarena/internal/repository/memory"
	"tradingarena/internal/voting"
	"tradingarena/internal/weights"
)

type call struct {
	agent models.Agent
	kind  models.PromptKind
}

type scriptedProposer struct {
	mu      sync.Mutex
	assets  map[models.Agent]string
	strats  map[models.Agent]string
	calls   []call
	gates   map[call]chan struct{}
	entered chan call
}

func newScripted() *scriptedProposer {
	return &scriptedProposer{
		assets: map[models.Agent]string{
			models.AgentChatGPT:  "AAPL",
			models.AgentGemini:   "AAPL",
			models.AgentGrok:     "AAPL",
			models.AgentDeepSeek: "NVDA",
		},
		strats: map[models.Agent]string{
			models.AgentChatGPT:  "Scalping",
			models.AgentGemini:   "Mean Reversion",
			models.AgentGrok:     "Scalping",
			models.AgentDeepSeek: "Mean Reversion",
		},
		gates:   map[call]chan struct{}{},
		entered: make(chan call, 32),
	}
}

func (p *scriptedProposer) gate(agent models.Agent, kind models.PromptKind) chan struct{} {
	ch := make(chan struct{})
	p.mu.Lock()
	p.gates[call{agent, kind}] = ch
	p.mu.Unlock()
	return ch
}

func (p *scriptedProposer) Propose(ctx context.Context, agent models.Agent, kind models.PromptKind, pc decision.Context) models.Proposal {
	c := call{agent, kind}
	p.mu.Lock()
	p.calls = append(p.calls, c)
	g := p.gates[c]
	p.mu.Unlock()
	p.entered <- c
	if g != nil {
		<-g
	}
	out := models.Proposal{Agent: agent, Kind: kind, Source: models.SourceExternal, Justification: "because"}
	switch kind {
	case models.PromptSelectAsset:
		out.Candidate = p.assets[agent]
	case models.PromptSelectStrategy:
		out.Candidate = p.strats[agent]
	default:
		out.Justification = "risky"
	}
	return out
}

func (p *scriptedProposer) count(kind models.PromptKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type fixedQuote struct{ price float64 }

func (q fixedQuote) Quote(ctx context.Context, ticker string) models.Quote {
	return models.Quote{Price: q.price}
}

type tickerLog struct {
	mu      sync.Mutex
	tickers []string
}

func (t *tickerLog) SetTicker(s string) {
	t.mu.Lock()
	t.tickers = append(t.tickers, s)
	t.mu.Unlock()
}

type harness struct {
	orch     *Orchestrator
	store    *memory.Store
	hub      *broadcast.Hub
	proposer *scriptedProposer
	tickers  *tickerLog
}

func newHarness(t *testing.T, cfg config.CycleConfig) *harness {
	t.Helper()
	store := memory.New()
	hub := broadcast.NewHub(1024, nil)
	p := newScripted()
	tl := &tickerLog{}
	o := New(cfg, Deps{
		Repo:     store,
		Proposer: p,
		Quotes:   fixedQuote{price: 181.25},
		Events:   hub,
		Adapter:  &weights.Adapter{Repo: store},
		Tickers:  tl,
	})
	hub.SetSnapshot(o.Snapshot)
	return &harness{orch: o, store: store, hub: hub, proposer: p, tickers: tl}
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not finish")
	}
}

func collect(sub *broadcast.Subscription) []broadcast.Event {
	var out []broadcast.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCycle_FullRun(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	sub := h.hub.Subscribe()
	ctx := context.Background()

	st, err := h.orch.Start(ctx, "msft")
	require.NoError(t, err)
	assert.Equal(t, models.CycleStockSelection, st.Status)
	waitDone(t, h.orch)

	final, err := h.store.GetCycleState(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CycleTrading, final.Status)
	assert.Equal(t, "AAPL", final.SelectedTicker)
	assert.Equal(t, "Mean Reversion", final.SelectedStrategy)
	assert.Equal(t, map[string]float64{"AAPL": 3, "NVDA": 1}, final.StockVotes)
	assert.Equal(t, map[string]float64{"Scalping": 2, "Mean Reversion": 2}, final.StrategyVotes)

	trades, err := h.store.ListTrades(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "AAPL", trades[0].Ticker)
	assert.Equal(t, models.ActionBuy, trades[0].Action)
	assert.Equal(t, 10, trades[0].Quantity)
	assert.Equal(t, "181.25", trades[0].Price.String())
	assert.Equal(t, "Mean Reversion", trades[0].Strategy)
	require.Contains(t, trades[0].Votes, "stock")
	assert.Equal(t, voting.Tally{"AAPL": 3, "NVDA": 1}, trades[0].Votes["stock"])

	msgs, err := h.store.ListDebateMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 8)
	assert.Equal(t, "I propose AAPL. because", msgs[0].Message)
	assert.Equal(t, "For AAPL, I suggest Scalping: because", msgs[4].Message)

	winner, _ := h.store.GetAgentWeight(ctx, models.AgentChatGPT)
	loser, _ := h.store.GetAgentWeight(ctx, models.AgentDeepSeek)
	assert.InDelta(t, 1.05, winner.SelectionWeight, 1e-9)
	assert.InDelta(t, 1.10, winner.StrategyWeight, 1e-9)
	assert.InDelta(t, 0.98, loser.SelectionWeight, 1e-9)
	assert.InDelta(t, 0.95, loser.StrategyWeight, 1e-9)

	assert.Equal(t, []string{"MSFT", "AAPL"}, h.tickers.tickers)

	var phases []models.CycleStatus
	var lastAAPL float64
	trade := 0
	for _, ev := range collect(sub) {
		switch ev.Type {
		case broadcast.EventCycleStatus:
			s := ev.Data.(models.CycleState)
			if len(phases) == 0 || phases[len(phases)-1] != s.Status {
				phases = append(phases, s.Status)
			}
			if s.Status == models.CycleStockSelection {
				assert.GreaterOrEqual(t, s.StockVotes["AAPL"], lastAAPL)
				lastAAPL = s.StockVotes["AAPL"]
			}
		case broadcast.EventTradeExecuted:
			trade++
		}
	}
	// The first entry is the idle snapshot sent on subscribe.
	assert.Equal(t, []models.CycleStatus{
		models.CycleIdle,
		models.CycleStockSelection,
		models.CycleStrategyDebate,
		models.CycleTrading,
	}, phases)
	assert.Equal(t, 1, trade)
	assert.False(t, h.orch.Running())
}

func TestCycle_StopBetweenSecondAndThirdAgent(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	waits := 0
	h.orch.wait = func(ctx context.Context, d time.Duration) error {
		waits++
		if waits == 2 {
			_, err := h.orch.Stop(context.Background())
			assert.NoError(t, err)
		}
		return ctx.Err()
	}

	_, err := h.orch.Start(context.Background(), "")
	require.NoError(t, err)
	waitDone(t, h.orch)

	st, err := h.store.GetCycleState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CycleStopped, st.Status)
	assert.Equal(t, map[string]float64{"AAPL": 2}, st.StockVotes)
	assert.Equal(t, 2, h.proposer.count(models.PromptSelectAsset))
	assert.Equal(t, 0, h.proposer.count(models.PromptSelectStrategy))

	msgs, _ := h.store.ListDebateMessages(context.Background())
	assert.Len(t, msgs, 2)
	trades, _ := h.store.ListTrades(context.Background(), 0)
	assert.Empty(t, trades)

	// Stopping again changes nothing.
	again, err := h.orch.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CycleStopped, again.Status)
	msgs, _ = h.store.ListDebateMessages(context.Background())
	assert.Len(t, msgs, 2)
}

func TestCycle_StopWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	sub := h.hub.Subscribe()
	_ = collect(sub)

	st, err := h.orch.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CycleIdle, st.Status)
	assert.Empty(t, collect(sub))
}

func TestCycle_StopDuringExternalCall(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	gate := h.proposer.gate(models.AgentGemini, models.PromptSelectAsset)

	_, err := h.orch.Start(context.Background(), "")
	require.NoError(t, err)
	for c := range h.proposer.entered {
		if c.agent == models.AgentGemini {
			break
		}
	}
	_, err = h.orch.Stop(context.Background())
	require.NoError(t, err)
	close(gate)
	waitDone(t, h.orch)

	st, _ := h.store.GetCycleState(context.Background())
	assert.Equal(t, models.CycleStopped, st.Status)
	// The answer that arrived after the stop is discarded.
	assert.Equal(t, map[string]float64{"AAPL": 1}, st.StockVotes)
	msgs, _ := h.store.ListDebateMessages(context.Background())
	assert.Len(t, msgs, 1)
}

func TestCycle_SingleFlight(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	gate := h.proposer.gate(models.AgentChatGPT, models.PromptSelectAsset)

	_, err := h.orch.Start(context.Background(), "")
	require.NoError(t, err)
	<-h.proposer.entered

	_, err = h.orch.Start(context.Background(), "")
	assert.True(t, errors.Is(err, ErrCycleRunning))

	close(gate)
	waitDone(t, h.orch)

	h.proposer.mu.Lock()
	delete(h.proposer.gates, call{models.AgentChatGPT, models.PromptSelectAsset})
	h.proposer.mu.Unlock()
	go func() {
		for range h.proposer.entered {
		}
	}()
	_, err = h.orch.Start(context.Background(), "")
	require.NoError(t, err)
	waitDone(t, h.orch)

	trades, _ := h.store.ListTrades(context.Background(), 0)
	assert.Len(t, trades, 2)
}

func TestCycle_SubscriberJoinsMidDebate(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	gate := h.proposer.gate(models.AgentGrok, models.PromptSelectStrategy)

	_, err := h.orch.Start(context.Background(), "")
	require.NoError(t, err)
	for c := range h.proposer.entered {
		if c.agent == models.AgentGrok && c.kind == models.PromptSelectStrategy {
			break
		}
	}

	sub := h.hub.Subscribe()
	first := <-sub.Events()
	assert.Equal(t, broadcast.EventCycleStatus, first.Type)
	st := first.Data.(models.CycleState)
	assert.Equal(t, models.CycleStrategyDebate, st.Status)
	assert.Equal(t, "AAPL", st.SelectedTicker)
	assert.Equal(t, map[string]float64{"Scalping": 1, "Mean Reversion": 1}, st.StrategyVotes)

	go func() {
		for range h.proposer.entered {
		}
	}()
	close(gate)
	waitDone(t, h.orch)
}

func TestCycle_CritiqueRound(t *testing.T) {
	h := newHarness(t, config.CycleConfig{CritiqueEnabled: true})
	_, err := h.orch.Start(context.Background(), "")
	require.NoError(t, err)
	waitDone(t, h.orch)

	msgs, _ := h.store.ListDebateMessages(context.Background())
	require.Len(t, msgs, 16)
	critiques := 0
	for _, m := range msgs {
		if m.MessageType == models.MessageCritique {
			critiques++
			assert.Equal(t, "risky", m.Message)
		}
	}
	assert.Equal(t, 8, critiques)
	st, _ := h.store.GetCycleState(context.Background())
	assert.Equal(t, map[string]float64{"AAPL": 3, "NVDA": 1}, st.StockVotes)
}

type failingTrades struct {
	*memory.Store
}

func (failingTrades) CreateTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	return models.Trade{}, errors.New("disk full")
}

func TestCycle_FatalErrorForcesStopped(t *testing.T) {
	store := memory.New()
	hub := broadcast.NewHub(1024, nil)
	p := newScripted()
	o := New(config.CycleConfig{}, Deps{
		Repo:     failingTrades{store},
		Proposer: p,
		Quotes:   fixedQuote{price: 10},
		Events:   hub,
	})
	sub := hub.Subscribe()

	_, err := o.Start(context.Background(), "")
	require.NoError(t, err)
	waitDone(t, o)

	st, _ := store.GetCycleState(context.Background())
	assert.Equal(t, models.CycleStopped, st.Status)

	events := collect(sub)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, broadcast.EventCycleStatus, last.Type)
	assert.Equal(t, models.CycleStopped, last.Data.(models.CycleState).Status)

	w, _ := store.GetAgentWeight(context.Background(), models.AgentChatGPT)
	assert.Equal(t, 1.0, w.SelectionWeight)

	// The process stays usable.
	assert.False(t, o.Running())
}

// slowLog holds the nth debate message write until release is closed.
type slowLog struct {
	*memory.Store
	mu      sync.Mutex
	n       int
	hold    int
	entered chan struct{}
	release chan struct{}
}

func (s *slowLog) CreateDebateMessage(ctx context.Context, msg models.DebateMessage) (models.DebateMessage, error) {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()
	if n == s.hold {
		close(s.entered)
		<-s.release
	}
	return s.Store.CreateDebateMessage(ctx, msg)
}

func TestCycle_StopNeverSplitsMessageFromBallot(t *testing.T) {
	store := &slowLog{Store: memory.New(), hold: 2, entered: make(chan struct{}), release: make(chan struct{})}
	p := newScripted()
	go func() {
		for range p.entered {
		}
	}()
	o := New(config.CycleConfig{}, Deps{Repo: store, Proposer: p, Quotes: fixedQuote{price: 1}})

	_, err := o.Start(context.Background(), "")
	require.NoError(t, err)
	<-store.entered

	stopped := make(chan struct{})
	go func() {
		_, err := o.Stop(context.Background())
		assert.NoError(t, err)
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("stop returned while a proposal was half recorded")
	case <-time.After(50 * time.Millisecond):
	}
	close(store.release)
	<-stopped
	waitDone(t, o)

	st, _ := store.GetCycleState(context.Background())
	assert.Equal(t, models.CycleStopped, st.Status)
	msgs, _ := store.ListDebateMessages(context.Background())
	require.Len(t, msgs, 2)
	total := 0.0
	for _, v := range st.StockVotes {
		total += v
	}
	assert.Equal(t, float64(len(msgs)), total)
}

func TestFail_LeavesStoppedCycleAlone(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	ctx := context.Background()
	_, err := h.store.UpdateCycleState(ctx, models.CycleStatePatch{Status: models.StatusPtr(models.CycleStopped)})
	require.NoError(t, err)
	sub := h.hub.Subscribe()

	h.orch.fail(ctx, errors.New("adapt weights: boom"))

	events := collect(sub)
	require.Len(t, events, 1, "only the join snapshot")
	assert.Equal(t, models.CycleStopped, events[0].Data.(models.CycleState).Status)
}

func TestFail_StopsRunningState(t *testing.T) {
	h := newHarness(t, config.CycleConfig{})
	ctx := context.Background()
	_, err := h.store.UpdateCycleState(ctx, models.CycleStatePatch{Status: models.StatusPtr(models.CycleStrategyDebate)})
	require.NoError(t, err)
	sub := h.hub.Subscribe()

	h.orch.fail(ctx, errors.New("record trade: disk full"))

	events := collect(sub)
	require.Len(t, events, 2)
	assert.Equal(t, models.CycleStopped, events[1].Data.(models.CycleState).Status)
}

func TestCycle_LogsProposalsByDisplayName(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	store := memory.New()
	p := newScripted()
	go func() {
		for range p.entered {
		}
	}()
	o := New(config.CycleConfig{}, Deps{Repo: store, Proposer: p, Quotes: fixedQuote{price: 1}, Logger: zap.New(core)})

	_, err := o.Start(context.Background(), "")
	require.NoError(t, err)
	waitDone(t, o)

	entries := logs.FilterMessage("proposal recorded").All()
	require.Len(t, entries, 8)
	assert.Equal(t, "ChatGPT", entries[0].ContextMap()["agent"])
	assert.Equal(t, "DeepSeek", entries[3].ContextMap()["agent"])
	assert.Equal(t, "NVDA", entries[3].ContextMap()["candidate"])
}

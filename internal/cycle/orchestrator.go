// Package cycle drives one trading cycle through stock selection, strategy
// debate and trading, publishing every step.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradingarena/internal/broadcast"
	"tradingarena/internal/config"
	"tradingarena/internal/decision"
	"tradingarena/internal/metrics"
	"tradingarena/internal/models"
	"tradingarena/internal/repository"
	"tradingarena/internal/voting"
	"tradingarena/internal/weights"
)

var ErrCycleRunning = errors.New("cycle: a cycle is already running")

// errStopped unwinds the cycle after Stop; it is not a failure.
var errStopped = errors.New("cycle: stopped")

type Quoter interface {
	Quote(ctx context.Context, ticker string) models.Quote
}

type Publisher interface {
	Publish(typ broadcast.EventType, data any) broadcast.Event
}

// TickerSetter receives the ticker the cycle is focused on.
type TickerSetter interface {
	SetTicker(ticker string)
}

type Orchestrator struct {
	repo     repository.Repository
	proposer decision.Proposer
	quotes   Quoter
	events   Publisher
	adapter  *weights.Adapter
	tickers  TickerSetter
	cfg      config.CycleConfig
	logger   *zap.Logger

	// stateMu serializes write-then-publish so observers see updates in order.
	stateMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time
}

type Deps struct {
	Repo     repository.Repository
	Proposer decision.Proposer
	Quotes   Quoter
	Events   Publisher
	Adapter  *weights.Adapter
	Tickers  TickerSetter
	Logger   *zap.Logger
}

func New(cfg config.CycleConfig, deps Deps) *Orchestrator {
	if strings.TrimSpace(cfg.DefaultTicker) == "" {
		cfg.DefaultTicker = "AAPL"
	}
	if strings.TrimSpace(cfg.DefaultStrategy) == "" {
		cfg.DefaultStrategy = "Momentum Trading"
	}
	if cfg.TradeQuantity <= 0 {
		cfg.TradeQuantity = 10
	}
	return &Orchestrator{
		repo:     deps.Repo,
		proposer: deps.Proposer,
		quotes:   deps.Quotes,
		events:   deps.Events,
		adapter:  deps.Adapter,
		tickers:  deps.Tickers,
		cfg:      cfg,
		logger:   deps.Logger,
		wait:     sleepCtx,
		now:      time.Now,
	}
}

// Start resets the cycle state and runs the cycle in the background. Only
// one cycle runs at a time; a second call returns ErrCycleRunning.
func (o *Orchestrator) Start(ctx context.Context, ticker string) (models.CycleState, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return models.CycleState{}, ErrCycleRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	o.running = true
	o.cancel = cancel
	o.done = done
	o.mu.Unlock()

	if t := strings.ToUpper(strings.TrimSpace(ticker)); t != "" && o.tickers != nil {
		o.tickers.SetTicker(t)
	}

	st, err := o.reset(runCtx)
	if err != nil {
		o.finish(cancel, done)
		return models.CycleState{}, err
	}

	metrics.CyclesTotal.WithLabelValues(metrics.OutcomeStarted).Inc()
	if o.logger != nil {
		o.logger.Info("cycle started")
	}
	go o.run(runCtx, cancel, done)
	return st, nil
}

// Stop marks the cycle stopped and cancels in-flight work. It is a no-op
// when nothing has started or the cycle is already stopped.
func (o *Orchestrator) Stop(ctx context.Context) (models.CycleState, error) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	st, err := o.repo.GetCycleState(ctx)
	if err != nil {
		return models.CycleState{}, fmt.Errorf("load cycle state: %w", err)
	}
	if st.Status == models.CycleIdle || st.Status == models.CycleStopped {
		return st, nil
	}

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	st, err = o.repo.UpdateCycleState(ctx, models.CycleStatePatch{Status: models.StatusPtr(models.CycleStopped)})
	if err != nil {
		return models.CycleState{}, fmt.Errorf("stop cycle: %w", err)
	}
	o.publish(broadcast.EventCycleStatus, st)
	if o.logger != nil {
		o.logger.Info("cycle stop requested")
	}
	return st, nil
}

// Running reports whether a cycle goroutine is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Done is closed when the most recently started cycle has finished.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.done
}

func (o *Orchestrator) State(ctx context.Context) (models.CycleState, error) {
	return o.repo.GetCycleState(ctx)
}

// Snapshot is the catch-up event for a new subscriber.
func (o *Orchestrator) Snapshot() (broadcast.Event, bool) {
	st, err := o.repo.GetCycleState(context.Background())
	if err != nil {
		if o.logger != nil {
			o.logger.Warn("cycle snapshot failed", zap.Error(err))
		}
		return broadcast.Event{}, false
	}
	return broadcast.Event{Type: broadcast.EventCycleStatus, Data: st, Timestamp: o.now().UTC()}, true
}

func (o *Orchestrator) reset(ctx context.Context) (models.CycleState, error) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	if err := o.repo.ClearDebateMessages(ctx); err != nil {
		return models.CycleState{}, fmt.Errorf("clear debate log: %w", err)
	}
	st, err := o.repo.UpdateCycleState(ctx, models.CycleStatePatch{
		Status:           models.StatusPtr(models.CycleStockSelection),
		SelectedTicker:   models.StrPtr(""),
		SelectedStrategy: models.StrPtr(""),
		StockVotes:       map[string]float64{},
		StrategyVotes:    map[string]float64{},
	})
	if err != nil {
		return models.CycleState{}, fmt.Errorf("reset cycle state: %w", err)
	}
	o.publish(broadcast.EventCycleStatus, st)
	return st, nil
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer o.finish(cancel, done)
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	err := o.runPhases(ctx)
	switch {
	case err == nil:
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
		if o.logger != nil {
			o.logger.Info("cycle completed")
		}
	case errors.Is(err, errStopped):
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeStopped).Inc()
		if o.logger != nil {
			o.logger.Info("cycle stopped")
		}
	default:
		o.fail(ctx, err)
	}
}

func (o *Orchestrator) finish(cancel context.CancelFunc, done chan struct{}) {
	cancel()
	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.mu.Unlock()
	close(done)
}

// fail forces the state to stopped. A cycle that was already stopped by a
// caller is left alone and nothing is published.
func (o *Orchestrator) fail(ctx context.Context, cause error) {
	metrics.CyclesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	if o.logger != nil {
		o.logger.Error("cycle failed", zap.Error(cause))
	}
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	ctx = context.WithoutCancel(ctx)
	if cur, err := o.repo.GetCycleState(ctx); err == nil && cur.Status == models.CycleStopped {
		return
	}
	st, err := o.repo.UpdateCycleState(ctx, models.CycleStatePatch{Status: models.StatusPtr(models.CycleStopped)})
	if err != nil {
		if o.logger != nil {
			o.logger.Error("mark cycle stopped", zap.Error(err))
		}
		return
	}
	o.publish(broadcast.EventCycleStatus, st)
}

func (o *Orchestrator) runPhases(ctx context.Context) error {
	all, err := o.repo.GetAgentWeights(ctx)
	if err != nil {
		return fmt.Errorf("load agent weights: %w", err)
	}
	table := make(map[models.Agent]models.AgentWeight, len(all))
	for _, w := range all {
		table[w.Agent] = w
	}

	ticker, stockVotes, ballots, err := o.selectStock(ctx, table)
	if err != nil {
		return err
	}
	if o.cfg.CritiqueEnabled {
		if err := o.critique(ctx, ticker, "", fmt.Sprintf("Trade %s next", ticker)); err != nil {
			return err
		}
	}

	strategy, strategyVotes, err := o.debateStrategy(ctx, table, ticker)
	if err != nil {
		return err
	}
	if o.cfg.CritiqueEnabled {
		if err := o.critique(ctx, ticker, strategy, fmt.Sprintf("Trade %s using %s", ticker, strategy)); err != nil {
			return err
		}
	}

	votes := datatypes.JSONMap{"stock": stockVotes, "strategy": strategyVotes}
	if err := o.execute(ctx, ticker, strategy, votes); err != nil {
		return err
	}

	// The trade is recorded; adaptation completes even if a stop arrives now.
	if o.adapter != nil {
		if _, err := o.adapter.Apply(context.WithoutCancel(ctx), weights.Winners(ballots, ticker)); err != nil {
			return fmt.Errorf("adapt weights: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) selectStock(ctx context.Context, table map[models.Agent]models.AgentWeight) (string, voting.Tally, map[models.Agent]weights.Ballot, error) {
	tally := voting.Tally{}
	ballots := make(map[models.Agent]weights.Ballot, len(models.AllAgents))

	for _, agent := range models.AllAgents {
		if err := o.checkStopped(ctx); err != nil {
			return "", nil, ballots, err
		}
		p := o.proposer.Propose(ctx, agent, models.PromptSelectAsset, decision.Context{})
		if err := ctx.Err(); err != nil {
			return "", nil, ballots, errStopped
		}

		weight := selectionWeight(table, agent)
		tally = voting.AddBallot(tally, p.Candidate, weight)
		ballots[agent] = weights.Ballot{Candidate: p.Candidate, Weight: weight}

		ticker := p.Candidate
		if err := o.recordProposal(ctx, models.DebateMessage{
			Agent:       agent,
			Message:     fmt.Sprintf("I propose %s. %s", p.Candidate, p.Justification),
			MessageType: models.MessageProposal,
			Ticker:      &ticker,
		}, models.CycleStatePatch{StockVotes: tally}); err != nil {
			return "", nil, ballots, err
		}
		o.logProposal(agent, p, weight)
		if err := o.pace(ctx); err != nil {
			return "", nil, ballots, err
		}
	}

	winner := voting.ResolveWinner(tally, o.cfg.DefaultTicker)
	if _, err := o.commit(ctx, models.CycleStatePatch{
		Status:         models.StatusPtr(models.CycleStrategyDebate),
		SelectedTicker: models.StrPtr(winner),
	}); err != nil {
		return "", nil, ballots, err
	}
	if o.tickers != nil {
		o.tickers.SetTicker(winner)
	}
	if o.logger != nil {
		o.logger.Info("stock selected", zap.String("ticker", winner), zap.Any("votes", tally))
	}
	return winner, tally, ballots, nil
}

func (o *Orchestrator) debateStrategy(ctx context.Context, table map[models.Agent]models.AgentWeight, ticker string) (string, voting.Tally, error) {
	tally := voting.Tally{}
	for _, agent := range models.AllAgents {
		if err := o.checkStopped(ctx); err != nil {
			return "", nil, err
		}
		p := o.proposer.Propose(ctx, agent, models.PromptSelectStrategy, decision.Context{Ticker: ticker})
		if err := ctx.Err(); err != nil {
			return "", nil, errStopped
		}

		weight := strategyWeight(table, agent)
		tally = voting.AddBallot(tally, p.Candidate, weight)
		strategy := p.Candidate
		if err := o.recordProposal(ctx, models.DebateMessage{
			Agent:       agent,
			Message:     fmt.Sprintf("For %s, I suggest %s: %s", ticker, p.Candidate, p.Justification),
			MessageType: models.MessageProposal,
			Strategy:    &strategy,
		}, models.CycleStatePatch{StrategyVotes: tally}); err != nil {
			return "", nil, err
		}
		o.logProposal(agent, p, weight)
		if err := o.pace(ctx); err != nil {
			return "", nil, err
		}
	}

	winner := voting.ResolveWinner(tally, o.cfg.DefaultStrategy)
	if _, err := o.commit(ctx, models.CycleStatePatch{
		Status:           models.StatusPtr(models.CycleTrading),
		SelectedStrategy: models.StrPtr(winner),
	}); err != nil {
		return "", nil, err
	}
	if o.logger != nil {
		o.logger.Info("strategy selected", zap.String("ticker", ticker), zap.String("strategy", winner), zap.Any("votes", tally))
	}
	return winner, tally, nil
}

// critique asks every agent to review the phase winner. Tallies and status
// are not touched.
func (o *Orchestrator) critique(ctx context.Context, ticker, strategy, proposal string) error {
	for _, agent := range models.AllAgents {
		if err := o.checkStopped(ctx); err != nil {
			return err
		}
		p := o.proposer.Propose(ctx, agent, models.PromptCritique, decision.Context{Ticker: ticker, Proposal: proposal})
		if err := ctx.Err(); err != nil {
			return errStopped
		}
		msg := models.DebateMessage{
			Agent:       agent,
			Message:     p.Justification,
			MessageType: models.MessageCritique,
			Ticker:      models.StrPtr(ticker),
		}
		if strategy != "" {
			msg.Strategy = models.StrPtr(strategy)
		}
		if err := o.record(ctx, msg); err != nil {
			return err
		}
		if err := o.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, ticker, strategy string, votes datatypes.JSONMap) error {
	if err := o.checkStopped(ctx); err != nil {
		return err
	}
	q := o.quotes.Quote(ctx, ticker)
	if err := ctx.Err(); err != nil {
		return errStopped
	}

	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if ctx.Err() != nil {
		return errStopped
	}
	trade, err := o.repo.CreateTrade(ctx, models.Trade{
		Ticker:   ticker,
		Action:   models.ActionBuy,
		Quantity: o.cfg.TradeQuantity,
		Price:    decimal.NewFromFloat(q.Price),
		Strategy: strategy,
		Votes:    votes,
	})
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	o.publish(broadcast.EventTradeExecuted, trade)
	if o.logger != nil {
		o.logger.Info("trade executed",
			zap.String("ticker", trade.Ticker),
			zap.String("strategy", trade.Strategy),
			zap.String("price", trade.Price.String()),
			zap.Int("quantity", trade.Quantity),
		)
	}
	return nil
}

// record appends a debate message and publishes it, unless the cycle was
// stopped in the meantime.
func (o *Orchestrator) record(ctx context.Context, msg models.DebateMessage) error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if ctx.Err() != nil {
		return errStopped
	}
	saved, err := o.repo.CreateDebateMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("append debate message: %w", err)
	}
	o.publish(broadcast.EventDebateMessage, saved)
	return nil
}

// recordProposal appends an agent's debate message and writes the tally that
// includes its ballot under one hold of stateMu, so a stop lands either before
// both or after both.
func (o *Orchestrator) recordProposal(ctx context.Context, msg models.DebateMessage, patch models.CycleStatePatch) error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if ctx.Err() != nil {
		return errStopped
	}
	saved, err := o.repo.CreateDebateMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("append debate message: %w", err)
	}
	st, err := o.repo.UpdateCycleState(ctx, patch)
	if err != nil {
		return fmt.Errorf("update cycle state: %w", err)
	}
	o.publish(broadcast.EventDebateMessage, saved)
	o.publish(broadcast.EventCycleStatus, st)
	return nil
}

func (o *Orchestrator) logProposal(agent models.Agent, p models.Proposal, weight float64) {
	if o.logger == nil {
		return
	}
	o.logger.Debug("proposal recorded",
		zap.String("agent", agent.DisplayName()),
		zap.String("kind", string(p.Kind)),
		zap.String("candidate", p.Candidate),
		zap.String("source", string(p.Source)),
		zap.Float64("weight", weight),
	)
}

// commit writes a state patch and publishes the resulting state.
func (o *Orchestrator) commit(ctx context.Context, patch models.CycleStatePatch) (models.CycleState, error) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if ctx.Err() != nil {
		return models.CycleState{}, errStopped
	}
	st, err := o.repo.UpdateCycleState(ctx, patch)
	if err != nil {
		return models.CycleState{}, fmt.Errorf("update cycle state: %w", err)
	}
	o.publish(broadcast.EventCycleStatus, st)
	return st, nil
}

// checkStopped is polled before every external call.
func (o *Orchestrator) checkStopped(ctx context.Context) error {
	if ctx.Err() != nil {
		return errStopped
	}
	st, err := o.repo.GetCycleState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errStopped
		}
		return fmt.Errorf("load cycle state: %w", err)
	}
	if st.Status == models.CycleStopped {
		return errStopped
	}
	return nil
}

func (o *Orchestrator) pace(ctx context.Context) error {
	if err := o.wait(ctx, o.cfg.AgentDelay); err != nil {
		return errStopped
	}
	return nil
}

func (o *Orchestrator) publish(typ broadcast.EventType, data any) {
	if o.events != nil {
		o.events.Publish(typ, data)
	}
}

func selectionWeight(table map[models.Agent]models.AgentWeight, agent models.Agent) float64 {
	if w, ok := table[agent]; ok {
		return w.SelectionWeight
	}
	return 1.0
}

func strategyWeight(table map[models.Agent]models.AgentWeight, agent models.Agent) float64 {
	if w, ok := table[agent]; ok {
		return w.StrategyWeight
	}
	return 1.0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

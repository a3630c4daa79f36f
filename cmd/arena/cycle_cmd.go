package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"tradingarena/internal/broadcast"
	"tradingarena/internal/logger"
	"tradingarena/internal/models"
)

type cycleSummary struct {
	State   models.CycleState      `json:"state"`
	Trade   *models.Trade          `json:"trade,omitempty"`
	Debate  []models.DebateMessage `json:"debate"`
	Weights []models.AgentWeight   `json:"weights"`
}

func runCycleOnce(ctx context.Context, opts *rootOptions, ticker string, delay time.Duration, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if delay >= 0 {
		cfg.Cycle.AgentDelay = delay
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	sub := a.hub.Subscribe()
	defer a.hub.Unsubscribe(sub)
	go logDebate(sub, log)

	if _, err := a.cycle.Start(ctx, ticker); err != nil {
		return err
	}
	select {
	case <-a.cycle.Done():
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := a.cycle.Stop(stopCtx); err != nil {
			log.Warn("stop cycle failed", zap.Error(err))
		}
		<-a.cycle.Done()
	}

	summary, err := summarize(context.WithoutCancel(ctx), a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func logDebate(sub *broadcast.Subscription, log *zap.Logger) {
	for ev := range sub.Events() {
		if ev.Type != broadcast.EventDebateMessage {
			continue
		}
		if msg, ok := ev.Data.(models.DebateMessage); ok {
			log.Info(msg.Agent.DisplayName(), zap.String("message", msg.Message))
		}
	}
}

func summarize(ctx context.Context, a *app) (cycleSummary, error) {
	var s cycleSummary
	var err error
	if s.State, err = a.store.GetCycleState(ctx); err != nil {
		return s, fmt.Errorf("load state: %w", err)
	}
	if s.Debate, err = a.store.ListDebateMessages(ctx); err != nil {
		return s, fmt.Errorf("load debate: %w", err)
	}
	if s.Weights, err = a.store.GetAgentWeights(ctx); err != nil {
		return s, fmt.Errorf("load weights: %w", err)
	}
	trades, err := a.store.ListTrades(ctx, 1)
	if err != nil {
		return s, fmt.Errorf("load trades: %w", err)
	}
	if len(trades) > 0 && s.State.Status == models.CycleTrading {
		s.Trade = &trades[0]
	}
	return s, nil
}

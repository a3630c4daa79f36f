// Package decision asks agents for proposals. Each agent is backed by an
// external chat model when one is configured; any failure falls back to a
// local synthesis so callers always get a usable proposal.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"tradingarena/internal/metrics"
	"tradingarena/internal/models"
)

var (
	ErrNoCredentials     = errors.New("decision: agent has no credentials")
	ErrMalformedResponse = errors.New("decision: malformed response")
)

// ChatModel is the part of an eino chat model this package needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Proposer is what the cycle orchestrator depends on.
type Proposer interface {
	Propose(ctx context.Context, agent models.Agent, kind models.PromptKind, pc Context) models.Proposal
}

type Source struct {
	// Models maps agents to their external responder. A missing entry means
	// the agent has no credentials and always uses synthesis.
	Models  map[models.Agent]ChatModel
	Timeout time.Duration
	Logger  *zap.Logger
	Now     func() time.Time
}

func NewSource(chatModels map[models.Agent]ChatModel, timeout time.Duration, logger *zap.Logger) *Source {
	return &Source{Models: chatModels, Timeout: timeout, Logger: logger, Now: time.Now}
}

// Propose never fails. One attempt is made against the agent's model; on any
// error the answer is synthesized locally.
func (s *Source) Propose(ctx context.Context, agent models.Agent, kind models.PromptKind, pc Context) models.Proposal {
	p, err := s.external(ctx, agent, kind, pc)
	if err == nil {
		metrics.ProposalsTotal.WithLabelValues(string(agent), string(kind), models.SourceExternal).Inc()
		return p
	}
	if s.Logger != nil {
		if errors.Is(err, ErrNoCredentials) {
			s.Logger.Debug("agent has no credentials, synthesizing",
				zap.String("agent", string(agent)), zap.String("kind", string(kind)))
		} else {
			s.Logger.Warn("agent call failed, synthesizing",
				zap.String("agent", string(agent)), zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	metrics.ProposalsTotal.WithLabelValues(string(agent), string(kind), models.SourceFallback).Inc()
	return Synthesize(agent, kind, s.now())
}

func (s *Source) external(ctx context.Context, agent models.Agent, kind models.PromptKind, pc Context) (models.Proposal, error) {
	cm, ok := s.Models[agent]
	if !ok || cm == nil {
		return models.Proposal{}, ErrNoCredentials
	}
	prompt, err := promptFor(kind, pc)
	if err != nil {
		return models.Proposal{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Proposal{}, err
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	msg, err := cm.Generate(callCtx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return models.Proposal{}, fmt.Errorf("generate: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return models.Proposal{}, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	return parseAnswer(agent, kind, msg.Content)
}

func promptFor(kind models.PromptKind, pc Context) (string, error) {
	switch kind {
	case models.PromptSelectAsset:
		return selectAssetPrompt, nil
	case models.PromptSelectStrategy:
		return renderSelectStrategy(pc.Ticker), nil
	case models.PromptCritique:
		return renderCritique(pc.Proposal), nil
	default:
		return "", fmt.Errorf("%w: unknown prompt kind %q", ErrMalformedResponse, kind)
	}
}

func (s *Source) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

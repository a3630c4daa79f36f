package decision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"tradingarena/internal/models"
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// maxStrategyLen matches the strategy columns of the debate log and trade log.
const maxStrategyLen = 100

type assetAnswer struct {
	Ticker        string `json:"ticker"`
	Justification string `json:"justification"`
}

type strategyAnswer struct {
	Strategy    string `json:"strategy"`
	Description string `json:"description"`
}

type critiqueAnswer struct {
	Critique string `json:"critique"`
	Response string `json:"response"`
}

// extractJSON drops markdown fences and any prose around the first object.
func extractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeStrict(raw string, out any) error {
	body, ok := extractJSON(raw)
	if !ok {
		return fmt.Errorf("%w: no json object", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func parseAnswer(agent models.Agent, kind models.PromptKind, raw string) (models.Proposal, error) {
	p := models.Proposal{Agent: agent, Kind: kind, Source: models.SourceExternal}
	switch kind {
	case models.PromptSelectAsset:
		var a assetAnswer
		if err := decodeStrict(raw, &a); err != nil {
			return p, err
		}
		ticker := strings.ToUpper(strings.TrimSpace(a.Ticker))
		if !tickerPattern.MatchString(ticker) {
			return p, fmt.Errorf("%w: bad ticker %q", ErrMalformedResponse, a.Ticker)
		}
		p.Candidate = ticker
		p.Justification = strings.TrimSpace(a.Justification)
		if p.Justification == "" {
			p.Justification = "Technical analysis suggests upside potential"
		}
	case models.PromptSelectStrategy:
		var a strategyAnswer
		if err := decodeStrict(raw, &a); err != nil {
			return p, err
		}
		p.Candidate = strings.TrimSpace(a.Strategy)
		if err := checkStrategyName(p.Candidate); err != nil {
			return p, err
		}
		p.Justification = strings.TrimSpace(a.Description)
		if p.Justification == "" {
			p.Justification = "Follow price momentum with stop-loss protection"
		}
	case models.PromptCritique:
		text := strings.TrimSpace(raw)
		var a critiqueAnswer
		if decodeStrict(raw, &a) == nil {
			if c := strings.TrimSpace(a.Critique); c != "" {
				text = c
			} else if r := strings.TrimSpace(a.Response); r != "" {
				text = r
			}
		}
		if text == "" {
			return p, fmt.Errorf("%w: empty critique", ErrMalformedResponse)
		}
		p.Justification = text
	default:
		return p, fmt.Errorf("%w: unknown prompt kind %q", ErrMalformedResponse, kind)
	}
	return p, nil
}

func checkStrategyName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty strategy", ErrMalformedResponse)
	}
	if n := utf8.RuneCountInString(name); n > maxStrategyLen {
		return fmt.Errorf("%w: strategy name has %d runes, max %d", ErrMalformedResponse, n, maxStrategyLen)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: control character in strategy name", ErrMalformedResponse)
	}
	return nil
}

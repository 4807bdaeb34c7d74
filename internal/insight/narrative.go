// Package insight turns a computed forecast into a short written
// commentary for pipeline reviews. The narrative is additive output
// only; callers degrade to a warning when generation fails.
package insight

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/scoring"
	"github.com/sells-group/forecast-cli/pkg/anthropic"
)

// maxDealsInPrompt caps how many deals the prompt carries. The largest
// open deals dominate the forecast; the rest is noise at commentary
// granularity.
const maxDealsInPrompt = 10

const systemPrompt = `You are a revenue operations analyst writing a brief pipeline commentary for a sales leadership review. You are given a revenue forecast summary and the largest open deals as JSON.

Write three short paragraphs of plain text:
1. Overall pipeline health: total and weighted pipeline, the forecast range, and what drives the spread between pessimistic and optimistic.
2. Confidence mix: where the revenue concentrates across high/medium/low tiers, and any stale-deal risk worth naming.
3. The deals that matter most this period and what would move the forecast.

Be direct and specific. Use only the numbers given. Do not invent data. Do not use markdown.`

// Generator produces forecast narratives through the Anthropic API.
type Generator struct {
	ai    anthropic.Client
	model string
}

func NewGenerator(ai anthropic.Client, model string) *Generator {
	return &Generator{ai: ai, model: model}
}

// promptPayload is the JSON document sent as the user message.
type promptPayload struct {
	Period     string           `json:"period"`
	Summary    forecast.Summary `json:"summary"`
	StaleDeals int              `json:"stale_deals"`
	TopDeals   []promptDeal     `json:"top_deals"`
}

type promptDeal struct {
	Name       string   `json:"name"`
	Stage      string   `json:"stage"`
	Amount     float64  `json:"amount"`
	Score      int      `json:"score"`
	Confidence string   `json:"confidence"`
	CloseDate  string   `json:"close_date,omitempty"`
	StaleFlags []string `json:"stale_flags,omitempty"`
}

// Narrative generates reviewer-ready commentary for one forecast.
func (g *Generator) Narrative(ctx context.Context, resp *forecast.Response) (string, error) {
	prompt, err := buildPrompt(resp)
	if err != nil {
		return "", err
	}

	msg, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: 1024,
		System:    []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "insight: narrative request")
	}

	msg.Usage.LogCost(g.model, "narrative")

	for _, block := range msg.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", eris.New("insight: empty narrative response")
}

// buildPrompt serializes the forecast into the user message. Deals are
// ranked by amount so truncation keeps the revenue that matters.
func buildPrompt(resp *forecast.Response) (string, error) {
	open := make([]scoring.ScoredOpportunity, 0, len(resp.Deals))
	for _, d := range resp.Deals {
		if d.Opportunity.Stage.IsOpen() {
			open = append(open, d)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Opportunity.Amount > open[j].Opportunity.Amount
	})
	if len(open) > maxDealsInPrompt {
		open = open[:maxDealsInPrompt]
	}

	payload := promptPayload{
		Period:     resp.Period.Label(),
		Summary:    resp.Summary,
		StaleDeals: len(resp.StaleDeals),
		TopDeals:   make([]promptDeal, 0, len(open)),
	}
	for _, d := range open {
		pd := promptDeal{
			Name:       d.Opportunity.Name,
			Stage:      string(d.Opportunity.Stage),
			Amount:     d.Opportunity.Amount,
			Score:      d.Score,
			Confidence: string(d.Confidence),
			StaleFlags: d.StaleFlags,
		}
		if cd := d.Opportunity.EffectiveCloseDate(); cd != nil {
			pd.CloseDate = cd.Format(time.DateOnly)
		}
		payload.TopDeals = append(payload.TopDeals, pd)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "insight: marshal prompt")
	}
	return string(raw), nil
}

package sources

import (
	"context"
	"fmt"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/polymarket"
)

// EventFetcher looks up prediction market events by slug
type EventFetcher interface {
	FetchEventsBySlugs(ctx context.Context, slugs []string) ([]polymarket.PolymarketEvent, error)
}

// MarketTarget is one tracked event and its preferred market labels
type MarketTarget struct {
	Slug             string
	Name             string
	PreferredMarkets []string
}

// Polymarket averages the YES odds of the tracked strike markets.
type Polymarket struct {
	clock
	events  EventFetcher
	targets []MarketTarget
}

// NewPolymarket creates the polymarket source
func NewPolymarket(events EventFetcher, targets []MarketTarget) *Polymarket {
	return &Polymarket{events: events, targets: targets}
}

func (p *Polymarket) Name() string { return models.KeyPolymarket }

func (p *Polymarket) GetRisk(ctx context.Context, _ []float64) (*models.Snapshot, error) {
	slugs := make([]string, 0, len(p.targets))
	for _, t := range p.targets {
		slugs = append(slugs, t.Slug)
	}

	events, err := p.events.FetchEventsBySlugs(ctx, slugs)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]polymarket.PolymarketEvent, len(events))
	for _, e := range events {
		bySlug[e.Slug] = e
	}

	markets := make([]interface{}, 0, len(p.targets))
	var sum float64
	best, bestOdds := "", -1
	for _, t := range p.targets {
		event, ok := bySlug[t.Slug]
		if !ok {
			continue
		}
		market := polymarket.BestMarket(event, t.PreferredMarkets)
		if market == nil {
			continue
		}
		price, _ := market.YesPrice()
		odds := baseline.ToRisk(price * 100)

		markets = append(markets, map[string]interface{}{
			"event_slug":      t.Slug,
			"event_name":      t.Name,
			"market_question": market.Question,
			"price":           price,
			"odds_percent":    odds,
		})
		sum += float64(odds)
		if odds > bestOdds {
			best, bestOdds = market.Question, odds
		}
	}

	if len(markets) == 0 {
		return nil, fmt.Errorf("no priced market found for %d tracked events", len(p.targets))
	}

	risk := baseline.ToRisk(sum / float64(len(markets)))
	return &models.Snapshot{
		Risk:   risk,
		Detail: fmt.Sprintf("%d%% odds", bestOdds),
		RawData: map[string]interface{}{
			"odds":        risk,
			"markets":     markets,
			"best_market": best,
			"timestamp":   p.stamp(),
		},
	}, nil
}

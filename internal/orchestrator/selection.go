package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/seo-autopilot/internal/types"
)

// keywordPicker binds the keyword for one job.
type keywordPicker func(ctx context.Context) (*types.Keyword, error)

// weight favors high priority and low use.
func weight(kw *types.Keyword) float64 {
	return (max(kw.PriorityScore, 0) + 1) / float64(1+kw.UseCount)
}

// pickWeighted draws from pool with probability proportional to weight.
// r must be in [0, 1).
func pickWeighted(pool []types.Keyword, r float64) *types.Keyword {
	total := 0.0
	for i := range pool {
		total += weight(&pool[i])
	}
	target := r * total
	for i := range pool {
		target -= weight(&pool[i])
		if target < 0 {
			return &pool[i]
		}
	}
	return &pool[len(pool)-1]
}

func (o *Orchestrator) poolPicker(kinds []types.KeywordType) keywordPicker {
	return func(ctx context.Context) (*types.Keyword, error) {
		pool, err := o.store.ListEligibleKeywords(ctx, kinds)
		if err != nil {
			return nil, fmt.Errorf("failed to list keywords: %w", err)
		}
		if len(pool) == 0 {
			return nil, ErrNoKeywordAvailable
		}
		kw := *pickWeighted(pool, o.random())
		return &kw, nil
	}
}

// explicitPicker binds a caller-chosen keyword. Keywords outside the pool are
// used as-is and do not update any use counters.
func (o *Orchestrator) explicitPicker(text string, kind types.KeywordType) keywordPicker {
	return func(ctx context.Context) (*types.Keyword, error) {
		text = strings.TrimSpace(text)
		kw, err := o.store.FindKeyword(ctx, text, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to look up keyword: %w", err)
		}
		if kw == nil {
			return &types.Keyword{Text: text, Type: kind}, nil
		}
		return kw, nil
	}
}

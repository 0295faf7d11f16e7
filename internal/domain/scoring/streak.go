// Package scoring derives team and service scores from check history.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/rampart/internal/domain/model"
)

// HistoryReader returns a service's completed checks in ascending round order.
type HistoryReader interface {
	CompletedHistory(ctx context.Context, serviceID int64) ([]model.CheckResult, error)
}

// ConsecutiveFailures counts failed checks walking backward from the most
// recent one, stopping at the first success.
func ConsecutiveFailures(history []model.CheckResult) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Result {
			break
		}
		n++
	}
	return n
}

// MaxConsecutiveFailures returns the longest failure run anywhere in history.
func MaxConsecutiveFailures(history []model.CheckResult) int {
	longest, run := 0, 0
	for _, c := range history {
		if c.Result {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return longest
}

// Analyzer reads completed check history and measures failure streaks.
type Analyzer struct {
	history HistoryReader
}

// NewAnalyzer creates an Analyzer over the given history source.
func NewAnalyzer(history HistoryReader) *Analyzer {
	return &Analyzer{history: history}
}

// ConsecutiveFailures returns the current trailing failure streak of a service.
// A service with no completed checks has a streak of 0.
func (a *Analyzer) ConsecutiveFailures(ctx context.Context, serviceID int64) (int, error) {
	h, err := a.history.CompletedHistory(ctx, serviceID)
	if err != nil {
		return 0, fmt.Errorf("load history for service %d: %w", serviceID, err)
	}
	return ConsecutiveFailures(h), nil
}

// MaxConsecutiveFailures returns the longest failure run a service has had.
func (a *Analyzer) MaxConsecutiveFailures(ctx context.Context, serviceID int64) (int, error) {
	h, err := a.history.CompletedHistory(ctx, serviceID)
	if err != nil {
		return 0, fmt.Errorf("load history for service %d: %w", serviceID, err)
	}
	return MaxConsecutiveFailures(h), nil
}

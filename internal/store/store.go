// Package store defines storage interfaces for persisting optimization
// trials and portfolio value series.
package store

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a study has no usable trials
var ErrNotFound = errors.New("not found")

// TrialRecord is one evaluated parameter set of a study
type TrialRecord struct {
	StudyID string `json:"study_id"`
	Number  int    `json:"number"`

	// Parameters
	RSIPeriod  int     `json:"rsi_period"`
	EMASpan    int     `json:"ema_span"`
	RSIBuy     int     `json:"rsi_buy"`
	RSISell    int     `json:"rsi_sell"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	// Results; undefined metrics are NaN
	Objective   float64 `json:"objective"`
	Calmar      float64 `json:"calmar"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	FinalValue  float64 `json:"final_value"`
	TradeCount  int     `json:"trade_count"`
	Error       string  `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Failed reports whether the trial's evaluation returned an error
func (t *TrialRecord) Failed() bool {
	return t.Error != ""
}

// Better reports whether t ranks above other. NaN objectives rank below
// every finite value, failed trials below everything, and ties go to the
// lower trial number.
func (t *TrialRecord) Better(other *TrialRecord) bool {
	if t.Failed() != other.Failed() {
		return !t.Failed()
	}
	tNaN, oNaN := math.IsNaN(t.Objective), math.IsNaN(other.Objective)
	switch {
	case tNaN && oNaN:
		return t.Number < other.Number
	case tNaN:
		return false
	case oNaN:
		return true
	case t.Objective != other.Objective:
		return t.Objective > other.Objective
	}
	return t.Number < other.Number
}

// TrialStore persists and retrieves optimization trials.
type TrialStore interface {
	// SaveTrial inserts or replaces a trial keyed by (study, number).
	SaveTrial(ctx context.Context, trial *TrialRecord) error

	// ListTrials returns the trials of a study ordered by number.
	ListTrials(ctx context.Context, studyID string) ([]TrialRecord, error)

	// BestTrial returns the highest ranked non-failed trial of a study.
	BestTrial(ctx context.Context, studyID string) (*TrialRecord, error)
}

// Compile-time interface checks.
var _ TrialStore = (*MemoryStore)(nil)
var _ TrialStore = (*SQLiteStore)(nil)

// MemoryStore keeps trials in memory. It is used when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	trials map[string]map[int]TrialRecord
}

// NewMemoryStore creates an empty in-memory trial store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trials: make(map[string]map[int]TrialRecord)}
}

// SaveTrial stores a copy of trial
func (m *MemoryStore) SaveTrial(_ context.Context, trial *TrialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	study, ok := m.trials[trial.StudyID]
	if !ok {
		study = make(map[int]TrialRecord)
		m.trials[trial.StudyID] = study
	}
	study[trial.Number] = *trial
	return nil
}

// ListTrials returns the study's trials ordered by number
func (m *MemoryStore) ListTrials(_ context.Context, studyID string) ([]TrialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TrialRecord, 0, len(m.trials[studyID]))
	for _, t := range m.trials[studyID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// BestTrial returns the highest ranked non-failed trial
func (m *MemoryStore) BestTrial(ctx context.Context, studyID string) (*TrialRecord, error) {
	trials, err := m.ListTrials(ctx, studyID)
	if err != nil {
		return nil, err
	}
	return bestOf(trials)
}

func bestOf(trials []TrialRecord) (*TrialRecord, error) {
	var best *TrialRecord
	for i := range trials {
		t := &trials[i]
		if t.Failed() {
			continue
		}
		if best == nil || t.Better(best) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	out := *best
	return &out, nil
}

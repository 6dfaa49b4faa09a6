package fsmlog

import (
	"context"
	"time"
)

// TimelineEntry is one successful transition on a model's timeline.
type TimelineEntry struct {
	FromState  *string   `json:"from_state"`
	ToState    string    `json:"to_state"`
	Event      *string   `json:"transition_event"`
	HappenedAt time.Time `json:"happened_at"`
	DurationMs *uint64   `json:"duration_ms"`
}

// StateDuration aggregates how long a model spent in one state.
// Min/Max are nil when no completed interval was recorded for the
// state (it only appears as the last known state).
type StateDuration struct {
	State             string  `json:"state"`
	Occurrences       int     `json:"occurrences"`
	TotalDurationMs   int64   `json:"total_duration_ms"`
	AverageDurationMs float64 `json:"average_duration_ms"`
	MinDurationMs     *int64  `json:"min_duration_ms"`
	MaxDurationMs     *int64  `json:"max_duration_ms"`

	intervals int
}

// GetStateTimeline returns the successful transitions of one
// (model, column) ordered by HappenedAt ascending, optionally bounded
// to [from, to].
func GetStateTimeline(ctx context.Context, store Store, modelType, modelID, column string, from, to *time.Time) ([]TimelineEntry, error) {
	records, err := store.ForModel(ctx, modelType, modelID, column)
	if err != nil {
		return nil, err
	}

	var out []TimelineEntry
	for _, rec := range records {
		if !rec.Succeeded() {
			continue
		}
		if from != nil && rec.HappenedAt.Before(*from) {
			continue
		}
		if to != nil && rec.HappenedAt.After(*to) {
			continue
		}
		out = append(out, TimelineEntry{
			FromState:  rec.FromState,
			ToState:    rec.ToState,
			Event:      rec.TransitionEvent,
			HappenedAt: rec.HappenedAt,
			DurationMs: rec.DurationMs,
		})
	}
	return out, nil
}

// GetStateTimeAnalysis aggregates time spent per state. The interval
// between consecutive entries is attributed to the later entry's
// from-state; the final entry's to-state counts one occurrence with no
// duration because it has no end time yet.
func GetStateTimeAnalysis(ctx context.Context, store Store, modelType, modelID, column string) (map[string]*StateDuration, error) {
	timeline, err := GetStateTimeline(ctx, store, modelType, modelID, column, nil, nil)
	if err != nil {
		return nil, err
	}

	analysis := make(map[string]*StateDuration)
	get := func(state string) *StateDuration {
		if sd, ok := analysis[state]; ok {
			return sd
		}
		sd := &StateDuration{State: state}
		analysis[state] = sd
		return sd
	}

	for i := 1; i < len(timeline); i++ {
		if timeline[i].FromState == nil {
			continue
		}
		interval := timeline[i].HappenedAt.Sub(timeline[i-1].HappenedAt).Milliseconds()

		sd := get(*timeline[i].FromState)
		sd.Occurrences++
		sd.intervals++
		sd.TotalDurationMs += interval
		if sd.MinDurationMs == nil || interval < *sd.MinDurationMs {
			v := interval
			sd.MinDurationMs = &v
		}
		if sd.MaxDurationMs == nil || interval > *sd.MaxDurationMs {
			v := interval
			sd.MaxDurationMs = &v
		}
	}

	if len(timeline) > 0 {
		get(timeline[len(timeline)-1].ToState).Occurrences++
	}

	for _, sd := range analysis {
		if sd.intervals > 0 {
			sd.AverageDurationMs = float64(sd.TotalDurationMs) / float64(sd.intervals)
		}
	}
	return analysis, nil
}

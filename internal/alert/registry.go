package alert

import (
	"context"
	"log/slog"
	"sort"
)

// WatchStore exposes the three discovery queries that feed the watch list.
type WatchStore interface {
	StrategyTokenIDs(ctx context.Context) ([]string, error)
	StepAlertTokenIDs(ctx context.Context) ([]string, error)
	TPAlertTokenIDs(ctx context.Context) ([]string, error)
}

// Registry derives the set of tokens that currently need price watching.
// Discovery is best-effort: a failing source contributes nothing instead of
// failing the whole query, so one bad join never stalls the scheduler.
type Registry struct {
	store  WatchStore
	logger *slog.Logger
}

func NewRegistry(store WatchStore, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// WatchedTokenIDs returns the deduplicated union of all alert sources,
// sorted for stable batching.
func (r *Registry) WatchedTokenIDs(ctx context.Context) []string {
	seen := make(map[string]struct{})

	sources := []struct {
		name  string
		query func(context.Context) ([]string, error)
	}{
		{"strategies", r.store.StrategyTokenIDs},
		{"step_alerts", r.store.StepAlertTokenIDs},
		{"tp_alerts", r.store.TPAlertTokenIDs},
	}

	for _, src := range sources {
		ids, err := src.query(ctx)
		if err != nil {
			r.logger.Error("watch discovery source failed", "source", src.name, "error", err)
			continue
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

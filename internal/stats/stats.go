// Package stats records per-user and per-action usage counters. The
// counters are observational only; nothing makes control decisions from
// them and counter updates are best effort.
package stats

import (
	"context"
	"sort"
	"strconv"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"

	"github.com/Laisky/telefiles/library/db/kv"
)

const (
	keyUserPrefix   = "stats:user:"
	keyActionPrefix = "stats:action:"
	keyDayPrefix    = "stats:day:"
	keyTotal        = "stats:total"

	dayLayout = "2006-01-02"
)

// Recorder accumulates usage counters in the key-value store.
type Recorder struct {
	store kv.Store
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store kv.Store) *Recorder {
	return &Recorder{store: store}
}

// Record bumps the per-user, per-action, per-day and total counters for
// one dispatched action. Counter updates are read-modify-write without
// locking; observational data tolerates lost increments under races.
func (r *Recorder) Record(ctx context.Context, uid int64, action string) error {
	day := gutils.Clock.GetUTCNow().Format(dayLayout)
	for _, key := range []string{
		keyUserPrefix + strconv.FormatInt(uid, 10),
		keyActionPrefix + action,
		keyDayPrefix + day,
		keyTotal,
	} {
		if err := r.increment(ctx, key); err != nil {
			return errors.Wrapf(err, "increment %q", key)
		}
	}

	return nil
}

func (r *Recorder) increment(ctx context.Context, key string) error {
	var count int64
	if _, err := r.store.Get(ctx, key, &count); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(r.store.Put(ctx, key, count+1))
}

// ActionCount is one named counter in a snapshot.
type ActionCount struct {
	Action string
	Count  int64
}

// Snapshot is the aggregate view served to administrators.
type Snapshot struct {
	DistinctUsers int
	TotalActions  int64
	Actions       []ActionCount
}

// Snapshot aggregates the stored counters.
func (r *Recorder) Snapshot(ctx context.Context) (*Snapshot, error) {
	userKeys, err := r.store.ListKeysByPrefix(ctx, keyUserPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "list user counters")
	}

	var total int64
	if _, err := r.store.Get(ctx, keyTotal, &total); err != nil {
		return nil, errors.Wrap(err, "get total counter")
	}

	actionKeys, err := r.store.ListKeysByPrefix(ctx, keyActionPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "list action counters")
	}

	snap := &Snapshot{
		DistinctUsers: len(userKeys),
		TotalActions:  total,
	}
	for _, key := range actionKeys {
		var count int64
		if _, err := r.store.Get(ctx, key, &count); err != nil {
			return nil, errors.Wrapf(err, "get counter %q", key)
		}

		snap.Actions = append(snap.Actions, ActionCount{
			Action: key[len(keyActionPrefix):],
			Count:  count,
		})
	}
	sort.Slice(snap.Actions, func(i, j int) bool {
		if snap.Actions[i].Count != snap.Actions[j].Count {
			return snap.Actions[i].Count > snap.Actions[j].Count
		}

		return snap.Actions[i].Action < snap.Actions[j].Action
	})

	return snap, nil
}

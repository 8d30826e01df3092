package breaker

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-intake/core"
)

const shardCount = 16

// CircuitOpenError is returned by Allow while a circuit is open. RetryAfter
// is the remaining time before the breaker will admit a probe.
type CircuitOpenError struct {
	Provider   string
	EventKind  string
	RetryAfter time.Duration
}

func (e CircuitOpenError) Error() string {
	return fmt.Sprintf(
		"breaker: circuit open for provider %q event kind %q, retry after %s",
		strings.TrimSpace(e.Provider),
		strings.TrimSpace(e.EventKind),
		e.RetryAfter,
	)
}

func (e CircuitOpenError) ToIntakeError() *goerrors.Error {
	metadata := map[string]any{
		"provider":   strings.TrimSpace(e.Provider),
		"event_kind": strings.TrimSpace(e.EventKind),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.IntakeErrorCircuitOpen).
		WithMetadata(metadata)
}

type circuitState struct {
	current        core.BreakerState
	failureCount   int
	successCount   int
	lastFailureAt  *time.Time
	probing        bool
	probeStartedAt *time.Time
}

type shard struct {
	mu       sync.Mutex
	circuits map[string]*circuitState
}

// Registry tracks one circuit per (provider, event kind) pair. Circuits are
// created lazily in the closed state; open circuits transition to half open
// on the first Allow call at or past the timeout deadline, never on a timer.
type Registry struct {
	Threshold int
	Timeout   time.Duration
	Now       func() time.Time

	shards [shardCount]*shard
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	registry := &Registry{
		Threshold: threshold,
		Timeout:   timeout,
		Now:       func() time.Time { return time.Now().UTC() },
	}
	for i := range registry.shards {
		registry.shards[i] = &shard{circuits: map[string]*circuitState{}}
	}
	return registry
}

func (r *Registry) Allow(_ context.Context, key core.BreakerKey) error {
	if r == nil {
		return nil
	}
	key = normalizeKey(key)
	if err := key.Validate(); err != nil {
		return err
	}

	sh := r.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	state := r.circuitLocked(sh, key)
	now := r.now()

	switch state.current {
	case core.BreakerStateClosed:
		return nil
	case core.BreakerStateOpen:
		deadline := r.reopenDeadline(state)
		if deadline == nil || now.Before(*deadline) {
			retryAfter := r.Timeout
			if deadline != nil {
				retryAfter = deadline.Sub(now)
			}
			return CircuitOpenError{Provider: key.Provider, EventKind: key.EventKind, RetryAfter: retryAfter}
		}
		state.current = core.BreakerStateHalfOpen
		r.admitProbe(state, now)
		return nil
	case core.BreakerStateHalfOpen:
		// A probe that never reported an outcome (the caller aborted before
		// dispatching) would hold the circuit half open forever; reclaim it
		// once its own timeout window expires.
		if state.probing {
			if deadline := r.probeDeadline(state); deadline != nil && now.Before(*deadline) {
				return CircuitOpenError{Provider: key.Provider, EventKind: key.EventKind, RetryAfter: deadline.Sub(now)}
			}
		}
		r.admitProbe(state, now)
		return nil
	default:
		return nil
	}
}

func (r *Registry) RecordOutcome(_ context.Context, key core.BreakerKey, success bool) {
	if r == nil {
		return
	}
	key = normalizeKey(key)
	if key.Validate() != nil {
		return
	}

	sh := r.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	state := r.circuitLocked(sh, key)
	now := r.now()

	if success {
		state.successCount++
		state.failureCount = 0
		state.probing = false
		state.probeStartedAt = nil
		if state.current != core.BreakerStateClosed {
			state.current = core.BreakerStateClosed
			state.lastFailureAt = nil
		}
		return
	}

	state.successCount = 0
	state.failureCount++
	failedAt := now
	state.lastFailureAt = &failedAt
	state.probing = false
	state.probeStartedAt = nil

	if state.current == core.BreakerStateHalfOpen {
		state.current = core.BreakerStateOpen
		return
	}
	if state.failureCount >= r.Threshold {
		state.current = core.BreakerStateOpen
	}
}

func (r *Registry) Snapshot() []core.BreakerSnapshot {
	if r == nil {
		return nil
	}
	snapshots := []core.BreakerSnapshot{}
	for _, sh := range r.shards {
		sh.mu.Lock()
		for raw, state := range sh.circuits {
			key := parseKey(raw)
			snapshot := core.BreakerSnapshot{
				Key:          key,
				State:        state.current,
				FailureCount: state.failureCount,
				SuccessCount: state.successCount,
				Threshold:    r.Threshold,
				Timeout:      r.Timeout,
			}
			if state.lastFailureAt != nil {
				lastFailure := *state.lastFailureAt
				snapshot.LastFailureAt = &lastFailure
			}
			snapshots = append(snapshots, snapshot)
		}
		sh.mu.Unlock()
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Key.String() < snapshots[j].Key.String()
	})
	return snapshots
}

func (r *Registry) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Registry) reopenDeadline(state *circuitState) *time.Time {
	if state == nil || state.lastFailureAt == nil {
		return nil
	}
	deadline := state.lastFailureAt.Add(r.Timeout)
	return &deadline
}

func (r *Registry) admitProbe(state *circuitState, now time.Time) {
	state.probing = true
	startedAt := now
	state.probeStartedAt = &startedAt
}

func (r *Registry) probeDeadline(state *circuitState) *time.Time {
	if state == nil || state.probeStartedAt == nil {
		return nil
	}
	deadline := state.probeStartedAt.Add(r.Timeout)
	return &deadline
}

func (r *Registry) circuitLocked(sh *shard, key core.BreakerKey) *circuitState {
	raw := key.String()
	state, ok := sh.circuits[raw]
	if !ok {
		state = &circuitState{current: core.BreakerStateClosed}
		sh.circuits[raw] = state
	}
	return state
}

func (r *Registry) shardFor(key core.BreakerKey) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key.String()))
	return r.shards[hasher.Sum32()%shardCount]
}

func normalizeKey(key core.BreakerKey) core.BreakerKey {
	return core.NewBreakerKey(key.Provider, key.EventKind)
}

func parseKey(raw string) core.BreakerKey {
	provider, eventKind, found := strings.Cut(raw, ":")
	if !found {
		return core.BreakerKey{Provider: raw}
	}
	return core.BreakerKey{Provider: provider, EventKind: eventKind}
}

var _ core.CircuitGate = (*Registry)(nil)

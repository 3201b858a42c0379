// Package startup runs the staged boot sequence: restore preferences, verify
// the session, warm the caches and sync remote state. Progress moves through
// fixed checkpoints so the UI can animate it, and every stage is held on
// screen for a minimum dwell so fast boots do not flicker.
package startup

import (
	"context"
	"sync"
	"time"

	"github.com/SeaWiser/shoes-sync/internal/identity"
	"github.com/SeaWiser/shoes-sync/internal/profile"
	"github.com/SeaWiser/shoes-sync/internal/remote"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/metrics"
)

type Step string

const (
	StepInit        Step = "init"
	StepPreferences Step = "loading-preferences"
	StepSession     Step = "checking-session"
	StepSyncing     Step = "syncing-data"
	StepFinalizing  Step = "finalizing"
	StepReady       Step = "ready"
)

var progressByStep = map[Step]int{
	StepInit:        0,
	StepPreferences: 25,
	StepSession:     50,
	StepSyncing:     75,
	StepFinalizing:  90,
	StepReady:       100,
}

// Status is the externally visible boot state.
type Status struct {
	Ready    bool   `json:"ready"`
	Progress int    `json:"progress"`
	Step     Step   `json:"step"`
	Degraded bool   `json:"degraded"`
	UserID   string `json:"userId,omitempty"`
}

// SessionRestorer resumes and verifies the persisted session.
type SessionRestorer interface {
	Restore(ctx context.Context) (*identity.State, bool)
	CurrentUser(ctx context.Context) (*remote.User, error)
}

// ProfileWarmer pre-loads the profile into the query cache.
type ProfileWarmer interface {
	Current(ctx context.Context, userID string) (*profile.Profile, error)
}

// CartAdopter offers the remote cart to the local one.
type CartAdopter interface {
	AdoptRemote(ctx context.Context, serialized string) error
}

// DomainSyncer folds one remote domain into the local store.
type DomainSyncer interface {
	Sync(ctx context.Context, userID string) error
}

type Params struct {
	Identity SessionRestorer
	Profiles ProfileWarmer
	Cart     CartAdopter
	Syncers  []DomainSyncer
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
	// MinDwell is the minimum time each stage stays visible.
	MinDwell time.Duration
	// Timeout bounds the whole sequence; on expiry the app comes up ready
	// but degraded.
	Timeout time.Duration
}

type Orchestrator struct {
	identity SessionRestorer
	profiles ProfileWarmer
	cart     CartAdopter
	syncers  []DomainSyncer
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	minDwell time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	status Status
	subs   []chan Status
}

func New(params Params) (*Orchestrator, error) {
	if params.Identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "startup requires the identity service")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	o := &Orchestrator{
		identity: params.Identity,
		profiles: params.Profiles,
		cart:     params.Cart,
		syncers:  params.Syncers,
		logg:     params.Logger,
		metrics:  params.Metrics,
		minDwell: params.MinDwell,
		timeout:  timeout,
		status:   Status{Step: StepInit},
	}
	return o, nil
}

// Status returns the current boot state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Subscribe delivers every status change. The channel is buffered; a slow
// consumer only misses intermediate states, never the latest one it reads.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, len(progressByStep))
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, sub := range o.subs {
			if sub == ch {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

func (o *Orchestrator) set(update func(*Status)) {
	o.mu.Lock()
	update(&o.status)
	o.status.Progress = progressByStep[o.status.Step]
	snapshot := o.status
	subs := o.subs
	o.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Run executes the boot sequence. Stage failures degrade the result instead
// of blocking it: the app always reaches ready, possibly offline.
func (o *Orchestrator) Run(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.set(func(s *Status) { s.Step = StepInit })

	// stage 1: local preferences are loaded at store construction, this
	// stage exists for pacing
	o.stage(ctx, StepPreferences, func(ctx context.Context) error { return nil })

	var userID string
	sessionErr := o.stage(ctx, StepSession, func(ctx context.Context) error {
		state, ok := o.identity.Restore(ctx)
		if !ok {
			return nil
		}
		user, err := o.identity.CurrentUser(ctx)
		if err != nil {
			if pkgerrors.IsTransport(err) && state != nil {
				// offline: keep the stored identity, a revoked session
				// would have come back as a definite nil
				userID = state.UserID
			}
			return err
		}
		if user != nil {
			userID = user.ID
		}
		return nil
	})
	degraded := sessionErr != nil

	// an unverified session keeps its identity but does not drive sync
	if userID != "" && sessionErr == nil {
		syncErr := o.stage(ctx, StepSyncing, func(ctx context.Context) error {
			return o.syncData(ctx, userID)
		})
		degraded = degraded || syncErr != nil
	}

	o.stage(ctx, StepFinalizing, func(ctx context.Context) error { return nil })

	o.set(func(s *Status) {
		s.Step = StepReady
		s.Ready = true
		s.Degraded = degraded
		s.UserID = userID
	})
	return o.Status()
}

func (o *Orchestrator) syncData(ctx context.Context, userID string) error {
	var firstErr error
	if o.profiles != nil {
		p, err := o.profiles.Current(ctx, userID)
		if err != nil {
			firstErr = err
		} else if o.cart != nil && p.CartJSON != "" {
			if err := o.cart.AdoptRemote(ctx, p.CartJSON); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, syncer := range o.syncers {
		if err := syncer.Sync(ctx, userID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// stage runs fn, reports the step, and holds it for at least the minimum
// dwell. A stage that outlives its dwell advances as soon as fn returns.
func (o *Orchestrator) stage(ctx context.Context, step Step, fn func(ctx context.Context) error) error {
	o.set(func(s *Status) { s.Step = step })
	start := time.Now()

	err := fn(ctx)
	elapsed := time.Since(start)
	o.metrics.ObserveStageDuration(string(step), elapsed)

	if err != nil && o.logg != nil {
		o.logg.Error(o.logg.WithField(ctx, "step", string(step)), "startup stage failed, continuing degraded", err)
	}

	if remaining := o.minDwell - elapsed; remaining > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(remaining):
		}
	}
	if err == nil && ctx.Err() != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeCancelled, ctx.Err(), "startup interrupted")
	}
	return err
}

package startup

import (
	"context"
	"testing"
	"time"

	"github.com/SeaWiser/shoes-sync/internal/identity"
	"github.com/SeaWiser/shoes-sync/internal/profile"
	"github.com/SeaWiser/shoes-sync/internal/remote"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
)

type stubIdentity struct {
	state      *identity.State
	user       *remote.User
	currentErr error
}

func (s *stubIdentity) Restore(ctx context.Context) (*identity.State, bool) {
	return s.state, s.state != nil
}

func (s *stubIdentity) CurrentUser(ctx context.Context) (*remote.User, error) {
	return s.user, s.currentErr
}

type stubProfiles struct {
	profile *profile.Profile
	err     error
	calls   int
}

func (s *stubProfiles) Current(ctx context.Context, userID string) (*profile.Profile, error) {
	s.calls++
	return s.profile, s.err
}

type stubAdopter struct {
	adopted string
}

func (s *stubAdopter) AdoptRemote(ctx context.Context, serialized string) error {
	s.adopted = serialized
	return nil
}

type stubSyncer struct {
	err   error
	calls int
}

func (s *stubSyncer) Sync(ctx context.Context, userID string) error {
	s.calls++
	return s.err
}

func newOrchestrator(t *testing.T, params Params) *Orchestrator {
	t.Helper()
	if params.MinDwell == 0 {
		params.MinDwell = time.Millisecond
	}
	if params.Timeout == 0 {
		params.Timeout = 5 * time.Second
	}
	o, err := New(params)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestRunSignedOutSkipsSyncStage(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, Params{Identity: &stubIdentity{}})
	ch, cancelSub := o.Subscribe()
	defer cancelSub()

	status := o.Run(context.Background())
	if !status.Ready || status.Degraded || status.UserID != "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Progress != 100 || status.Step != StepReady {
		t.Fatalf("unexpected terminal state %+v", status)
	}

	var steps []Step
drain:
	for {
		select {
		case s := <-ch:
			steps = append(steps, s.Step)
		default:
			break drain
		}
	}
	for _, s := range steps {
		if s == StepSyncing {
			t.Fatalf("signed-out boot must not sync, saw %v", steps)
		}
	}
	if steps[len(steps)-1] != StepReady {
		t.Fatalf("last step = %v", steps)
	}
}

func TestRunAuthenticatedWarmsProfileAndAdoptsCart(t *testing.T) {
	t.Parallel()

	profiles := &stubProfiles{profile: &profile.Profile{ID: "u1", CartJSON: `{"lines":[]}`}}
	adopter := &stubAdopter{}
	syncer := &stubSyncer{}
	o := newOrchestrator(t, Params{
		Identity: &stubIdentity{state: &identity.State{UserID: "u1"}, user: &remote.User{ID: "u1"}},
		Profiles: profiles,
		Cart:     adopter,
		Syncers:  []DomainSyncer{syncer},
	})

	status := o.Run(context.Background())
	if !status.Ready || status.Degraded {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.UserID != "u1" {
		t.Fatalf("user id = %q", status.UserID)
	}
	if profiles.calls != 1 || syncer.calls != 1 {
		t.Fatalf("profile calls %d, syncer calls %d", profiles.calls, syncer.calls)
	}
	if adopter.adopted != `{"lines":[]}` {
		t.Fatalf("cart not offered: %q", adopter.adopted)
	}
}

func TestRunDegradesWhenSyncFails(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, Params{
		Identity: &stubIdentity{state: &identity.State{UserID: "u1"}, user: &remote.User{ID: "u1"}},
		Profiles: &stubProfiles{err: pkgerrors.New(pkgerrors.CodeTransport, "offline")},
	})

	status := o.Run(context.Background())
	if !status.Ready {
		t.Fatalf("boot must finish even when sync fails: %+v", status)
	}
	if !status.Degraded {
		t.Fatalf("expected degraded status")
	}
	if status.UserID != "u1" {
		t.Fatalf("user survives a degraded boot, got %q", status.UserID)
	}
}

func TestRunOfflineSessionCheckTrustsStoredSession(t *testing.T) {
	t.Parallel()

	profiles := &stubProfiles{}
	o := newOrchestrator(t, Params{
		Identity: &stubIdentity{
			state:      &identity.State{UserID: "u1"},
			currentErr: pkgerrors.New(pkgerrors.CodeTransport, "offline"),
		},
		Profiles: profiles,
	})

	status := o.Run(context.Background())
	if !status.Ready || !status.Degraded {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.UserID != "u1" {
		t.Fatalf("offline boot should keep the stored identity, got %q", status.UserID)
	}
	// the unverified session must not drive a sync pass
	if profiles.calls != 0 {
		t.Fatalf("sync ran against an unverified session")
	}
}

func TestRunHonorsMinimumDwell(t *testing.T) {
	t.Parallel()

	dwell := 30 * time.Millisecond
	o := newOrchestrator(t, Params{Identity: &stubIdentity{}, MinDwell: dwell})

	start := time.Now()
	o.Run(context.Background())
	// three dwelled stages: preferences, session, finalizing
	if elapsed := time.Since(start); elapsed < 3*dwell {
		t.Fatalf("boot finished in %v, expected at least %v", elapsed, 3*dwell)
	}
}

func TestRunBoundedByTimeout(t *testing.T) {
	t.Parallel()

	slow := &stubProfiles{err: nil}
	o := newOrchestrator(t, Params{
		Identity: &stubIdentity{state: &identity.State{UserID: "u1"}, user: &remote.User{ID: "u1"}},
		Profiles: slow,
		Syncers: []DomainSyncer{syncFunc(func(ctx context.Context, userID string) error {
			<-ctx.Done()
			return ctx.Err()
		})},
		Timeout: 50 * time.Millisecond,
	})

	start := time.Now()
	status := o.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not honored, took %v", elapsed)
	}
	if !status.Ready || !status.Degraded {
		t.Fatalf("timed-out boot should be ready but degraded: %+v", status)
	}
}

type syncFunc func(ctx context.Context, userID string) error

func (f syncFunc) Sync(ctx context.Context, userID string) error { return f(ctx, userID) }

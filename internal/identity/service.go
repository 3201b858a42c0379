// Package identity manages the signed-in user: session creation, restore on
// startup and sign-out. The session secret is persisted locally so the app
// resumes authenticated without a fresh login.
package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SeaWiser/shoes-sync/internal/localstore"
	"github.com/SeaWiser/shoes-sync/internal/remote"
	pkgerrors "github.com/SeaWiser/shoes-sync/pkg/errors"
	"github.com/SeaWiser/shoes-sync/pkg/logger"
)

// State is what survives a restart: enough to resume the session and know
// which remote profile document belongs to this device.
type State struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// SessionClient is the slice of the remote client the identity flow needs.
type SessionClient interface {
	Account(ctx context.Context) (*remote.User, error)
	CreateEmailSession(ctx context.Context, email, password string) (*remote.Session, error)
	DeleteSession(ctx context.Context) error
	SetSession(secret string)
}

type ServiceParams struct {
	Store  *localstore.Store
	Client SessionClient
	Logger *logger.Logger
	// OnSignOut runs after local identity is gone, letting callers drop
	// cached user data.
	OnSignOut func()
}

type Service interface {
	// Restore loads the persisted session, rejects it if its token is
	// already expired, and installs it on the remote client. It never talks
	// to the network.
	Restore(ctx context.Context) (*State, bool)
	// CurrentUser verifies the session against the backend. A revoked or
	// expired session clears local identity and returns (nil, nil); only
	// infrastructure problems surface as errors.
	CurrentUser(ctx context.Context) (*remote.User, error)
	// State reads the persisted identity without touching the session on
	// the remote client.
	State() (*State, bool)
	SignIn(ctx context.Context, email, password string) (*State, error)
	SignOut(ctx context.Context) error
}

type service struct {
	store     *localstore.Store
	client    SessionClient
	logg      *logger.Logger
	onSignOut func()
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil || params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity service requires a store and a remote client")
	}
	return &service{
		store:     params.Store,
		client:    params.Client,
		logg:      params.Logger,
		onSignOut: params.OnSignOut,
		now:       time.Now,
	}, nil
}

func (s *service) Restore(ctx context.Context) (*State, bool) {
	var state State
	if !s.store.Get(localstore.DomainIdentity, &state) || state.Token == "" {
		return nil, false
	}
	if tokenExpired(state.Token, s.now()) {
		if s.logg != nil {
			s.logg.Info(ctx, "persisted session token already expired, dropping it")
		}
		s.clearLocal(ctx)
		return nil, false
	}
	s.client.SetSession(state.Token)
	return &state, true
}

func (s *service) State() (*State, bool) {
	var state State
	if !s.store.Get(localstore.DomainIdentity, &state) || state.UserID == "" {
		return nil, false
	}
	return &state, true
}

func (s *service) CurrentUser(ctx context.Context) (*remote.User, error) {
	user, err := s.client.Account(ctx)
	if err == nil {
		return user, nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeUnauthorized {
		// the backend no longer honors this session; forget it
		s.clearLocal(ctx)
		s.client.SetSession("")
		return nil, nil
	}
	return nil, err
}

func (s *service) SignIn(ctx context.Context, email, password string) (*State, error) {
	session, err := s.client.CreateEmailSession(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.client.SetSession(session.Secret)

	state := State{UserID: session.UserID, Email: email, Token: session.Secret}
	if err := s.store.Set(ctx, localstore.DomainIdentity, state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *service) SignOut(ctx context.Context) error {
	// best effort: a dead network must not trap the user in a session
	if err := s.client.DeleteSession(ctx); err != nil && !pkgerrors.IsTransport(err) {
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
			return err
		}
	}
	s.client.SetSession("")
	// explicit logout is the one moment the whole local store empties
	if err := s.store.Clear(ctx); err != nil && s.logg != nil {
		s.logg.Error(ctx, "clearing local store on sign-out", err)
	}
	if s.onSignOut != nil {
		s.onSignOut()
	}
	return nil
}

func (s *service) clearLocal(ctx context.Context) {
	if err := s.store.Set(ctx, localstore.DomainIdentity, State{}); err != nil && s.logg != nil {
		s.logg.Error(ctx, "clearing persisted identity", err)
	}
}

// tokenExpired reports whether token is a JWT whose expiry has passed. The
// signature is deliberately not verified. Opaque tokens
// are treated as live and left to the backend to judge.
func tokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

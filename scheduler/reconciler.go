package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/JanssenProject/jans-sub021/authn"
	"github.com/JanssenProject/jans-sub021/clients"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
)

const (
	JobSessionCleanup      = "session-cleanup"
	JobAuthenticatorReload = "authenticator-reload"
	JobKeyRotation         = "key-rotation"
)

const clientPageSize = 100

type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type TokenSweeper interface {
	RemoveExpired(ctx context.Context) (int, error)
	RemoveForExpiredClientSecrets(ctx context.Context, expired []*clients.Client) (int, error)
}

type AuthenticatorReloader interface {
	ReloadFrom(ctx context.Context, source authn.DefinitionSource) error
}

type KeyRotator interface {
	RotateIfDue(ctx context.Context) (bool, error)
}

// CacheCleaner is implemented by in-process caches that evict lazily.
type CacheCleaner interface {
	Cleanup() int
}

// Reconciler holds what the background jobs operate on. Nil members disable the jobs
// that need them.
type Reconciler struct {
	Sessions      SessionSweeper
	Tokens        TokenSweeper
	Clients       clients.Repo
	Cache         CacheCleaner
	Selector      AuthenticatorReloader
	Definitions   authn.DefinitionSource
	Keys          KeyRotator
	Now           func() time.Time
	CleanupEvery  time.Duration
	ReloadEvery   time.Duration
	KeyCheckEvery time.Duration
}

// Register adds the reconciliation jobs to s.
func (r *Reconciler) Register(s *Scheduler) error {
	if r.Now == nil {
		r.Now = time.Now
	}
	var jobs []Job
	if r.Sessions != nil || r.Tokens != nil {
		jobs = append(jobs, Job{Name: JobSessionCleanup, Interval: r.CleanupEvery, Run: r.cleanup})
	}
	if r.Selector != nil && r.Definitions != nil {
		jobs = append(jobs, Job{Name: JobAuthenticatorReload, Interval: r.ReloadEvery, Run: r.reloadAuthenticators})
	}
	if r.Keys != nil {
		jobs = append(jobs, Job{Name: JobKeyRotation, Interval: r.KeyCheckEvery, Run: r.rotateKeys})
	}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return errors.Wrap(err, "[Reconciler.Register]")
		}
	}
	return nil
}

// cleanup removes expired sessions and grants. Each step runs even if an earlier one
// failed.
func (r *Reconciler) cleanup(ctx context.Context) error {
	var errs []error
	if r.Sessions != nil {
		if _, err := r.Sessions.Sweep(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Tokens != nil {
		if _, err := r.Tokens.RemoveExpired(ctx); err != nil {
			errs = append(errs, err)
		}
		expired, err := r.expiredClients()
		if err != nil {
			errs = append(errs, err)
		} else if len(expired) > 0 {
			if _, err := r.Tokens.RemoveForExpiredClientSecrets(ctx, expired); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if r.Cache != nil {
		r.Cache.Cleanup()
	}
	return ierrors.Join(errs...)
}

func (r *Reconciler) expiredClients() ([]*clients.Client, error) {
	if r.Clients == nil {
		return nil, nil
	}
	now := r.Now()
	var expired []*clients.Client
	for offset := 0; ; offset += clientPageSize {
		page, err := r.Clients.List(offset, clientPageSize)
		if err != nil {
			return nil, errors.Wrap(err, "[Reconciler.expiredClients]")
		}
		for _, c := range page {
			if c.SecretExpired(now) {
				expired = append(expired, c)
			}
		}
		if len(page) < clientPageSize {
			return expired, nil
		}
	}
}

func (r *Reconciler) reloadAuthenticators(ctx context.Context) error {
	return r.Selector.ReloadFrom(ctx, r.Definitions)
}

func (r *Reconciler) rotateKeys(ctx context.Context) error {
	_, err := r.Keys.RotateIfDue(ctx)
	return err
}

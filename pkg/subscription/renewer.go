package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/planskit/pkg/clock"
	"github.com/dmitrymomot/planskit/pkg/logger"
)

// RenewalReport summarizes one renewal sweep.
type RenewalReport struct {
	Candidates int
	Renewed    int
	Skipped    int // refused by a lifecycle rule, e.g. already renewed elsewhere
	Failed     int
}

// Renewer periodically renews lapsed recurring subscribers and retries owed charges.
type Renewer struct {
	svc         Service
	repo        Repository
	clock       clock.Clock
	log         *slog.Logger
	interval    time.Duration
	concurrency int
}

// RenewerOption configures a Renewer.
type RenewerOption func(*Renewer)

func WithRenewerClock(c clock.Clock) RenewerOption {
	return func(r *Renewer) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithRenewerLogger(l *slog.Logger) RenewerOption {
	return func(r *Renewer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRenewalInterval sets how often Run sweeps.
func WithRenewalInterval(d time.Duration) RenewerOption {
	return func(r *Renewer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRenewalConcurrency bounds how many subscribers are renewed in parallel.
func WithRenewalConcurrency(n int) RenewerOption {
	return func(r *Renewer) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRenewerConfig applies the environment-driven sweep settings.
func WithRenewerConfig(cfg Config) RenewerOption {
	return func(r *Renewer) {
		WithRenewalInterval(cfg.RenewalInterval)(r)
		WithRenewalConcurrency(cfg.RenewalConcurrency)(r)
	}
}

// NewRenewer creates a sweeper. Panics if svc or repo is nil.
func NewRenewer(svc Service, repo Repository, opts ...RenewerOption) *Renewer {
	if svc == nil {
		panic("subscription: Service is required")
	}
	if repo == nil {
		panic("subscription: Repository is required")
	}

	r := &Renewer{
		svc:         svc,
		repo:        repo,
		clock:       clock.Real(),
		log:         slog.New(slog.DiscardHandler),
		interval:    time.Hour,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce renews every candidate once. Lifecycle refusals count as skipped;
// infrastructure failures are joined into the returned error and do not stop
// the remaining renewals.
func (r *Renewer) RunOnce(ctx context.Context) (RenewalReport, error) {
	owners, err := r.repo.ListRenewalCandidates(ctx, r.clock.Now())
	if err != nil {
		return RenewalReport{}, fmt.Errorf("list renewal candidates: %w", err)
	}

	report := RenewalReport{Candidates: len(owners)}
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, owner := range owners {
		g.Go(func() error {
			_, err := r.svc.Renew(gctx, owner)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Renewed++
			case IsPrecondition(err):
				report.Skipped++
			default:
				report.Failed++
				errs = append(errs, fmt.Errorf("renew %s: %w", owner.Key(), err))
			}
			// Never abort the group; one subscriber failing must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	return report, errors.Join(errs...)
}

// Run sweeps every interval until ctx is done.
func (r *Renewer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log := r.log.With(logger.Component("renewer"))
	for {
		started := time.Now()
		report, err := r.RunOnce(ctx)
		if err != nil {
			log.ErrorContext(ctx, "subscription renewal sweep had failures", logger.Error(err),
				slog.Int("renewed", report.Renewed), slog.Int("failed", report.Failed))
		} else if report.Candidates > 0 {
			log.InfoContext(ctx, "subscription renewal sweep finished",
				logger.Group("report",
					slog.Int("candidates", report.Candidates),
					slog.Int("renewed", report.Renewed),
					slog.Int("skipped", report.Skipped),
				),
				logger.Duration(time.Since(started)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Package refresh implements the credential refresh job: it renews every
// connected account's long-lived user token, replaces the account's page
// collection from upstream, and re-asserts the leadgen webhook
// subscription on each page.
package refresh

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adstack/leadsync/internal/metrics"
	"github.com/adstack/leadsync/internal/model"
	"github.com/adstack/leadsync/internal/store"
	"github.com/adstack/leadsync/pkg/graph"
)

// LongLivedTokenTTL is the lifetime the platform grants exchanged
// long-lived user tokens: 90 days.
const LongLivedTokenTTL = 7776000 * time.Second

// Options tunes refresh behavior.
type Options struct {
	// Threshold gates the token exchange on remaining lifetime: the
	// exchange is skipped while more than Threshold of the token's
	// lifetime remains. Zero refreshes unconditionally.
	Threshold time.Duration
}

// Job refreshes account credentials. A failure for one account never
// aborts the batch; the account keeps its stale token until the next
// successful cycle.
type Job struct {
	store store.Store
	graph graph.Client
	opts  Options
	log   *zap.Logger
	now   func() time.Time
}

// NewJob creates a credential refresh job.
func NewJob(st store.Store, gc graph.Client, opts Options) *Job {
	return &Job{
		store: st,
		graph: gc,
		opts:  opts,
		log:   zap.L().With(zap.String("job", "refresh")),
		now:   time.Now,
	}
}

// Run performs one refresh pass over all accounts. Only a failure to list
// accounts aborts the run.
func (j *Job) Run(ctx context.Context) error {
	accounts, err := j.store.ListAccounts(ctx)
	if err != nil {
		return eris.Wrap(err, "refresh: list accounts")
	}

	j.log.Info("starting credential refresh", zap.Int("accounts", len(accounts)))

	for i := range accounts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		account := &accounts[i]
		if err := j.refreshAccount(ctx, account); err != nil {
			metrics.RecordTokenRefresh("failure")
			j.log.Error("failed to refresh credentials",
				zap.String("account", account.Name),
				zap.Error(err),
			)
			continue
		}
	}

	j.log.Info("credential refresh complete")
	return nil
}

// refreshAccount renews one account: token exchange (unless gated by the
// threshold), wholesale page replacement, and per-page webhook
// re-subscription. The account is persisted after the token exchange and
// again after the page replacement, so a later failure does not lose the
// fresh token.
func (j *Job) refreshAccount(ctx context.Context, account *model.Account) error {
	log := j.log.With(zap.String("account", account.Name))

	exchanged := j.shouldExchange(account)
	if exchanged {
		token, err := j.graph.ExchangeToken(ctx, account.AccessToken)
		if err != nil {
			return eris.Wrap(err, "exchange token")
		}
		account.AccessToken = token.AccessToken
		// The exchange endpoint does not reliably report expires_in;
		// long-lived tokens are granted the standard 90-day lifetime.
		account.ExpiresIn = int64(LongLivedTokenTTL / time.Second)
		account.UpdatedAt = j.now().UTC()
		if err := j.store.SaveAccount(ctx, account); err != nil {
			return eris.Wrap(err, "save refreshed token")
		}
		log.Info("user token refreshed")
	} else {
		log.Info("token exchange skipped",
			zap.Duration("remaining", account.TokenRemaining(j.now())),
		)
	}

	pages, err := j.graph.ListPages(ctx, account.AccessToken)
	if err != nil {
		return eris.Wrap(err, "list pages")
	}
	account.Pages = make([]model.Page, 0, len(pages))
	for _, p := range pages {
		account.Pages = append(account.Pages, model.Page{
			PageID:      p.ID,
			Name:        p.Name,
			Category:    p.Category,
			AccessToken: p.AccessToken,
		})
	}
	if err := j.store.SaveAccount(ctx, account); err != nil {
		return eris.Wrap(err, "save refreshed pages")
	}

	for _, page := range account.Pages {
		if err := j.graph.SubscribeLeadsWebhook(ctx, page.PageID, page.AccessToken); err != nil {
			return eris.Wrapf(err, "subscribe webhook for page %s", page.PageID)
		}
	}

	// Exactly one result per account pass: "skipped" when the exchange
	// was threshold-gated, "success" otherwise. Failures are recorded by
	// the caller.
	if exchanged {
		metrics.RecordTokenRefresh("success")
	} else {
		metrics.RecordTokenRefresh("skipped")
	}
	log.Info("page tokens refreshed", zap.Int("pages", len(account.Pages)))
	return nil
}

// shouldExchange applies the expiry gate. With no threshold configured the
// exchange always proceeds, matching the platform's recommendation to
// refresh long-lived tokens on every cycle.
func (j *Job) shouldExchange(account *model.Account) bool {
	if j.opts.Threshold <= 0 {
		return true
	}
	return account.TokenRemaining(j.now()) <= j.opts.Threshold
}

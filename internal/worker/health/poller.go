// Package health periodically re-checks connected channel accounts.
package health

import (
	"context"
	"time"

	"github.com/wolfman30/estate-crm/internal/inbox"
	"github.com/wolfman30/estate-crm/internal/observability/metrics"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

type accountStore interface {
	All(ctx context.Context) ([]inbox.Account, error)
	UpdateStatus(ctx context.Context, id string, status inbox.AccountStatus, lastError string, checkedAt time.Time) error
}

type accountChecker interface {
	CheckAccount(ctx context.Context, account inbox.Account) error
}

// Poller marks each account connected or error based on a live credential
// check. It runs off the request path and shares no state with handlers.
type Poller struct {
	accounts accountStore
	checker  accountChecker
	metrics  *metrics.CRMMetrics
	logger   *logging.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewPoller(accounts accountStore, checker accountChecker, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		accounts: accounts,
		checker:  checker,
		logger:   logger,
		interval: 10 * time.Minute,
		timeout:  15 * time.Second,
		now:      time.Now,
	}
}

func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *Poller) WithMetrics(m *metrics.CRMMetrics) *Poller {
	p.metrics = m
	return p
}

// Run checks immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.checkAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkAll(ctx)
		}
	}
}

func (p *Poller) checkAll(ctx context.Context) {
	if p.accounts == nil || p.checker == nil {
		return
	}
	accounts, err := p.accounts.All(ctx)
	if err != nil {
		p.logger.Error("account health fetch failed", "error", err)
		return
	}
	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		if account.Status == inbox.AccountDisconnected {
			continue
		}
		p.checkOne(ctx, account)
	}
}

func (p *Poller) checkOne(ctx context.Context, account inbox.Account) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status, lastError := inbox.AccountConnected, ""
	if err := p.checker.CheckAccount(checkCtx, account); err != nil {
		status, lastError = inbox.AccountError, err.Error()
		p.logger.Warn("account health check failed", "error", err, "account_id", account.ID, "channel", account.Channel)
	}
	p.metrics.SetAccountHealth(string(account.Channel), account.ID, status == inbox.AccountConnected)
	if err := p.accounts.UpdateStatus(ctx, account.ID, status, lastError, p.now().UTC()); err != nil {
		p.logger.Error("account health update failed", "error", err, "account_id", account.ID)
	}
}

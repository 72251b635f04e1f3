package payments

import (
	"context"
	"time"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

// Poller periodically checks a provider's pending invoices and feeds
// newly paid ones to the reconciler. It is the pull-side counterpart of
// the webhook handlers: either path may observe a payment first and the
// reconciler's idempotency gate makes the overlap safe.
type Poller struct {
	logger *logger.Logger

	provider   models.PaymentProvider
	repo       models.Repository
	reconciler models.Reconciler
	interval   time.Duration
}

// reconcileTimeout bounds one reconciliation kicked off by the poller,
// matching the webhook path's budget.
const reconcileTimeout = 60 * time.Second

func NewPoller(provider models.PaymentProvider, repo models.Repository, reconciler models.Reconciler, interval time.Duration, logger *logger.Logger) *Poller {
	return &Poller{
		provider:   provider,
		repo:       repo,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
	}
}

// Run polls until the context is cancelled. Cancellation is checked
// between iterations, never mid reconciliation, so shutdown does not
// abandon a held user lock.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Payment poller started ", "provider ", p.provider.Name(), " interval ", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Payment poller stopped ", "provider ", p.provider.Name())
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	pending, err := p.repo.PendingPayments(p.provider.Name())
	if err != nil {
		p.logger.Error("Failed to list pending payments ", "provider ", p.provider.Name(), " error ", err)
		return
	}

	for _, payment := range pending {
		status, err := p.provider.CheckStatus(ctx, payment.InvoiceID)
		if err != nil {
			p.logger.Warn("Failed to check invoice status ", "provider ", p.provider.Name(), " invoice ", payment.InvoiceID, " error ", err)
			continue
		}

		switch status {
		case models.IntentPaid:
			// Reconciliation runs detached from shutdown cancellation:
			// aborting mid-activation after the pending->paid transition
			// would leave the payment partially applied. The timeout
			// still bounds a hung remote call. Lock contention inside is
			// a deferral, not a failure: the invoice stays pending and
			// the next cycle retries it.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
			err := p.reconciler.HandlePaid(rctx, p.provider.Name(), payment.InvoiceID)
			cancel()
			if err != nil {
				p.logger.Error("Failed to reconcile paid invoice ", "provider ", p.provider.Name(), " invoice ", payment.InvoiceID, " error ", err)
			}
		case models.IntentFailed:
			if err := p.repo.SetPaymentStatus(p.provider.Name(), payment.InvoiceID, models.PaymentFailed); err != nil {
				p.logger.Error("Failed to mark invoice failed ", "provider ", p.provider.Name(), " invoice ", payment.InvoiceID, " error ", err)
			}
		}
	}
}

package txflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/params"
	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/ledger"
	"github.com/uhyunpark/objmarket/pkg/util"
)

const DefaultConfirmTimeout = 2 * time.Minute

// Signer authorizes transactions on behalf of the connected account.
type Signer interface {
	Address() string
	Sign(txBytes []byte) (string, error)
}

// Journal persists terminal lifecycle outcomes.
type Journal interface {
	RecordOutcome(s Snapshot) error
}

// Observer is told about every finished lifecycle.
type Observer interface {
	LifecycleFinished(action ActionKind, state State, kind ErrorKind, took time.Duration)
}

// Settings is the slice of configuration the coordinator needs.
type Settings struct {
	Contract        params.Contract
	OperatorAddress string
	GasBudget       uint64

	MintedSettle   time.Duration
	ListedSettle   time.Duration
	TradeSettle    time.Duration
	ConfirmTimeout time.Duration
}

func SettingsFrom(cfg params.Config) Settings {
	return Settings{
		Contract:        cfg.Contract,
		OperatorAddress: cfg.Market.OperatorAddress,
		GasBudget:       cfg.Contract.GasBudget,
		MintedSettle:    cfg.Timing.MintedSettle,
		ListedSettle:    cfg.Timing.ListedSettle,
		TradeSettle:     cfg.Timing.TradeSettle,
		ConfirmTimeout:  cfg.Timing.ConfirmTimeout,
	}
}

// Coordinator drives actions through build, sign, submit and confirm, and
// announces settled changes on the bus.
type Coordinator struct {
	settings Settings
	client   ledger.Client
	bus      *events.Bus
	clock    util.Clock
	log      *zap.SugaredLogger
	journal  Journal
	observer Observer
	registry *Registry

	mu      sync.Mutex
	pending map[string]pendingPublish // by lifecycle id
	closed  bool
	wg      sync.WaitGroup
}

type pendingPublish struct {
	cancel func()
	due    time.Time
}

type Option func(*Coordinator)

func WithClock(clock util.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Coordinator) { c.log = util.Sugar(log) }
}

func WithJournal(j Journal) Option {
	return func(c *Coordinator) { c.journal = j }
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithRegistry(r *Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

func NewCoordinator(settings Settings, client ledger.Client, bus *events.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		settings: settings,
		client:   client,
		bus:      bus,
		clock:    util.RealClock{},
		log:      util.Sugar(nil),
		pending:  make(map[string]pendingPublish),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.settings.ConfirmTimeout <= 0 {
		c.settings.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.registry == nil {
		c.registry = NewRegistry(0)
	}
	return c
}

func (c *Coordinator) Registry() *Registry { return c.registry }

// Run drives action to a terminal state and returns its lifecycle.
func (c *Coordinator) Run(ctx context.Context, signer Signer, action Action) *Lifecycle {
	lc := c.begin(signer, action)
	c.drive(ctx, lc, signer, action)
	return lc
}

// Start is Run on its own goroutine. The returned lifecycle can be polled or
// waited on. The work outlives ctx cancellation.
func (c *Coordinator) Start(ctx context.Context, signer Signer, action Action) *Lifecycle {
	lc := c.begin(signer, action)
	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.drive(bg, lc, signer, action)
	}()
	return lc
}

// Close waits for lifecycles started with Start and cancels settle
// publishes that have not fired. Lifecycles confirmed after Close publish
// nothing.
func (c *Coordinator) Close() {
	c.wg.Wait()
	c.mu.Lock()
	c.closed = true
	for id, p := range c.pending {
		p.cancel()
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Coordinator) begin(signer Signer, action Action) *Lifecycle {
	sender := ""
	if signer != nil {
		sender = signer.Address()
	}
	lc := newLifecycle(uuid.NewString(), action.Kind(), sender, c.clock.Now())
	c.registry.add(lc)
	return lc
}

func (c *Coordinator) drive(ctx context.Context, lc *Lifecycle, signer Signer, action Action) {
	log := c.log.With("lifecycle", lc.ID(), "action", action.Kind())
	defer c.finish(lc, log)

	txBytes, ferr := c.prepare(ctx, signer, action)
	if ferr != nil {
		c.failWith(lc, log, ferr)
		return
	}
	c.mustAdvance(lc, StateBuilt, log)

	sig, err := signer.Sign(txBytes)
	if err != nil {
		c.failWith(lc, log, &Error{Kind: KindSubmission, Message: failedMessage(action.Kind()), Err: err})
		return
	}
	res, err := c.client.ExecuteTransaction(ctx, txBytes, []string{sig})
	if err != nil {
		c.failWith(lc, log, &Error{Kind: KindSubmission, Message: failedMessage(action.Kind()), Err: err})
		return
	}
	c.mustAdvance(lc, StateSubmitted, log)

	if res.Digest == "" {
		log.Warnw("submission_without_digest")
		c.confirmed(lc, log, action, "", "Submitted. Digest unavailable from response.")
		return
	}
	lc.setDigest(res.Digest)
	c.mustAdvance(lc, StateAwaitingConfirmation, log)
	log.Infow("awaiting_confirmation", "digest", res.Digest)

	waitCtx, cancel := context.WithTimeout(ctx, c.settings.ConfirmTimeout)
	conf, err := c.client.WaitForConfirmation(waitCtx, res.Digest)
	waitErr := waitCtx.Err()
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrExecutionFailed):
			c.failWith(lc, log, &Error{Kind: KindSubmission, Message: failedMessage(action.Kind()), Err: err})
		case ctx.Err() == nil && errors.Is(waitErr, context.DeadlineExceeded):
			c.failWith(lc, log, &Error{
				Kind:    KindConfirmationTimeout,
				Message: fmt.Sprintf("Transaction %s not confirmed within %s", res.Digest, c.settings.ConfirmTimeout),
				Err:     err,
			})
		case ctx.Err() != nil:
			c.failWith(lc, log, &Error{
				Kind:    KindSubmission,
				Message: fmt.Sprintf("Stopped waiting for transaction %s", res.Digest),
				Err:     err,
			})
		default:
			c.failWith(lc, log, &Error{
				Kind:    KindSubmission,
				Message: fmt.Sprintf("Could not confirm transaction %s", res.Digest),
				Err:     err,
			})
		}
		return
	}

	produced := ""
	if len(conf.Created) > 0 {
		produced = conf.Created[0].ID
	}
	c.confirmed(lc, log, action, produced, confirmedMessage(action.Kind(), produced))
}

// prepare runs every precondition and returns the serialized transaction.
// Nothing here submits anything.
func (c *Coordinator) prepare(ctx context.Context, signer Signer, action Action) ([]byte, *Error) {
	if signer == nil || signer.Address() == "" {
		return nil, validationError("Connect wallet")
	}
	sender := signer.Address()
	if action.Kind() == ActionWithdraw && !IsOperator(c.settings.OperatorAddress, sender) {
		return nil, validationError("Admin only")
	}
	if c.settings.Contract.PackageID == "" {
		return nil, configurationError("Set PACKAGE_ID in env")
	}

	cmds, ferr := action.build(ctx, buildEnv{contract: c.settings.Contract, client: c.client})
	if ferr != nil {
		return nil, ferr
	}

	tx := ledger.Transaction{Sender: sender, GasBudget: c.settings.GasBudget, Commands: cmds}
	if err := tx.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: failedMessage(action.Kind()), Err: err}
	}
	data, err := tx.Serialize()
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: failedMessage(action.Kind()), Err: err}
	}
	return data, nil
}

func (c *Coordinator) confirmed(lc *Lifecycle, log *zap.SugaredLogger, action Action, produced, status string) {
	if err := lc.confirm(produced, status, c.clock.Now()); err != nil {
		log.Errorw("lifecycle_transition_rejected", "err", err)
		return
	}
	log.Infow("lifecycle_confirmed", "produced_id", produced, "status", status)

	topic, delay, ok := c.settleFor(action.Kind())
	if !ok {
		return
	}
	now := c.clock.Now()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		log.Debugw("settle_publish_skipped", "topic", topic)
		return
	}
	cancel := events.PublishAfter(c.clock, c.bus, topic, delay)
	for id, p := range c.pending {
		if p.due.Before(now) {
			delete(c.pending, id)
		}
	}
	c.pending[lc.ID()] = pendingPublish{cancel: cancel, due: now.Add(delay)}
	c.mu.Unlock()
}

func (c *Coordinator) settleFor(kind ActionKind) (events.Topic, time.Duration, bool) {
	switch kind {
	case ActionMint:
		return events.TopicItemMinted, c.settings.MintedSettle, true
	case ActionList:
		return events.TopicItemListed, c.settings.ListedSettle, true
	case ActionBuy, ActionCancel:
		return events.TopicListingChanged, c.settings.TradeSettle, true
	}
	return "", 0, false
}

func (c *Coordinator) failWith(lc *Lifecycle, log *zap.SugaredLogger, e *Error) {
	if err := lc.fail(e, c.clock.Now()); err != nil {
		log.Errorw("lifecycle_transition_rejected", "err", err)
		return
	}
	log.Warnw("lifecycle_failed", "kind", e.Kind, "err", e.Error())
}

func (c *Coordinator) mustAdvance(lc *Lifecycle, to State, log *zap.SugaredLogger) {
	if err := lc.advance(to, c.clock.Now()); err != nil {
		log.Errorw("lifecycle_transition_rejected", "err", err)
	}
}

func (c *Coordinator) finish(lc *Lifecycle, log *zap.SugaredLogger) {
	snap := lc.Snapshot()
	if c.journal != nil {
		if err := c.journal.RecordOutcome(snap); err != nil {
			log.Warnw("journal_write_failed", "err", err)
		}
	}
	if c.observer != nil {
		c.observer.LifecycleFinished(snap.Action, snap.State, snap.ErrorKind, snap.FinishedAt.Sub(snap.StartedAt))
	}
}

func failedMessage(kind ActionKind) string {
	switch kind {
	case ActionMint:
		return "Mint failed"
	case ActionList:
		return "List failed"
	case ActionBuy:
		return "Buy failed"
	case ActionCancel:
		return "Cancel failed"
	case ActionWithdraw:
		return "Withdraw failed"
	}
	return "Transaction failed"
}

func confirmedMessage(kind ActionKind, produced string) string {
	switch kind {
	case ActionMint:
		if produced == "" {
			return "Confirmed, but NFT id not found"
		}
		return "Mint confirmed"
	case ActionList:
		return "Listing confirmed"
	case ActionBuy:
		return "Purchase confirmed"
	case ActionCancel:
		return "Listing cancelled"
	case ActionWithdraw:
		return "Withdrawal confirmed"
	}
	return "Confirmed"
}

// Package market assembles the marketplace client: ledger connection,
// signer, transaction coordinator, views and persistence.
package market

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/params"
	"github.com/uhyunpark/objmarket/pkg/api"
	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/ledger"
	"github.com/uhyunpark/objmarket/pkg/metrics"
	"github.com/uhyunpark/objmarket/pkg/storage"
	"github.com/uhyunpark/objmarket/pkg/txflow"
	"github.com/uhyunpark/objmarket/pkg/util"
	"github.com/uhyunpark/objmarket/pkg/views"
)

// maxAccounts bounds the per-account views kept alive for API callers.
const maxAccounts = 64

const defaultRecent = 20

// App owns every long-lived component. It implements api.Backend.
type App struct {
	cfg   params.Config
	log   *zap.SugaredLogger
	clock util.Clock

	client  ledger.Client
	signer  txflow.Signer
	store   storage.Store
	metrics *metrics.Collector
	bus     *events.Bus

	coord    *txflow.Coordinator
	fetcher  *index.Fetcher
	listings *views.ListingsView
	periodic *events.Periodic

	viewCtx     context.Context
	cancelViews context.CancelFunc

	mu       sync.Mutex
	accounts map[string]*account
	lru      []string // least recently used first

	closers   []func()
	closeOnce sync.Once
}

var _ api.Backend = (*App)(nil)

// account is the pair of views kept per queried owner.
type account struct {
	items   *views.OwnedItemsView
	balance *views.BalanceView
}

func (a *account) close() {
	a.items.Close()
	a.balance.Close()
}

func (a *account) wait() {
	a.items.Wait()
	a.balance.Wait()
}

type Option func(*App)

// WithClient replaces the dialed JSON-RPC client.
func WithClient(c ledger.Client) Option {
	return func(a *App) { a.client = c }
}

// WithSigner replaces the key loaded from SIGNER_KEY.
func WithSigner(s txflow.Signer) Option {
	return func(a *App) { a.signer = s }
}

// WithStore replaces the pebble store under the data directory.
func WithStore(s storage.Store) Option {
	return func(a *App) { a.store = s }
}

func WithClock(c util.Clock) Option {
	return func(a *App) { a.clock = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *App) { a.log = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(a *App) { a.metrics = m }
}

// New wires an App from cfg. Components not supplied through opts are
// built from configuration; those are closed by Close.
func New(ctx context.Context, cfg params.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		clock:    util.RealClock{},
		accounts: make(map[string]*account),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = util.Sugar(a.log)
	if a.metrics == nil {
		a.metrics = metrics.NewCollector("")
	}

	if a.client == nil {
		endpoint, err := cfg.RPCEndpoint()
		if err != nil {
			return nil, err
		}
		rc, err := ledger.Dial(ctx, endpoint, ledger.Options{
			RateLimit:      cfg.RPC.RateLimit,
			Burst:          cfg.RPC.Burst,
			PollInterval:   cfg.Timing.PollInterval,
			Clock:          a.clock,
			Logger:         a.log,
			RequestTimeout: cfg.RPC.RequestTimeout,
			Observe:        a.metrics.ObserveRPC,
		})
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint, err)
		}
		a.client = rc
		a.closers = append(a.closers, rc.Close)
	}

	if a.signer == nil && cfg.Node.SignerKey != "" {
		s, err := crypto.FromSeedHex(cfg.Node.SignerKey)
		if err != nil {
			a.shutdown()
			return nil, fmt.Errorf("SIGNER_KEY: %w", err)
		}
		a.signer = s
	}

	if a.store == nil {
		if cfg.Node.DataDir == "" {
			a.store = storage.NewMemoryStore()
		} else {
			ps, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "objmarket.db"))
			if err != nil {
				a.shutdown()
				return nil, err
			}
			a.store = ps
			a.closers = append(a.closers, func() {
				if err := ps.Close(); err != nil {
					a.log.Warnw("store_close_failed", "err", err)
				}
			})
		}
	}

	a.bus = events.NewBus(a.log)
	a.closers = append(a.closers, a.metrics.TapBus(a.bus))

	a.coord = txflow.NewCoordinator(txflow.SettingsFrom(cfg), a.client, a.bus,
		txflow.WithClock(a.clock),
		txflow.WithLogger(a.log),
		txflow.WithJournal(a.store),
		txflow.WithObserver(a.metrics),
	)
	a.fetcher = &index.Fetcher{
		Client:   a.client,
		PageSize: cfg.Market.PageSize,
		MaxPages: cfg.Market.MaxPages,
		Log:      a.log,
	}

	a.viewCtx, a.cancelViews = context.WithCancel(context.Background())
	a.listings = views.NewListingsView(a.bus, a.fetcher, cfg.Market.MarketplaceAddress, cfg.Contract.ListingType, a.viewOptions())
	a.periodic = events.NewPeriodic(a.bus, cfg.Timing.RefreshInterval, a.log, events.TopicListingsRefresh)

	a.log.Infow("market_ready",
		"network", cfg.Network.Name,
		"signer", a.SignerAddress(),
		"problems", len(cfg.Problems()))
	return a, nil
}

func (a *App) viewOptions() views.Options {
	return views.Options{
		Store:   a.store,
		Clock:   a.clock,
		Logger:  a.log,
		Context: a.viewCtx,
	}
}

// Start loads the listings once and begins periodic refreshes.
func (a *App) Start(ctx context.Context) {
	if err := a.listings.Refresh(ctx); err != nil {
		if txflow.IsConfiguration(err) {
			a.log.Infow("listings_disabled", "reason", err.Error())
		} else {
			a.log.Warnw("initial_listings_failed", "err", err)
		}
	}
	a.periodic.Start()
}

// Close stops refreshes, cancels pending settle publishes, waits for
// in-flight fetches and releases owned resources.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.periodic.Stop()
		a.coord.Close()
		a.listings.Close()

		a.mu.Lock()
		accounts := make([]*account, 0, len(a.accounts))
		for _, acc := range a.accounts {
			acc.close()
			accounts = append(accounts, acc)
		}
		a.accounts = map[string]*account{}
		a.lru = nil
		a.mu.Unlock()

		a.cancelViews()
		a.listings.Wait()
		for _, acc := range accounts {
			acc.wait()
		}
		a.shutdown()
	})
}

func (a *App) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) Config() params.Config { return a.cfg }

func (a *App) Bus() *events.Bus { return a.bus }

func (a *App) Metrics() *metrics.Collector { return a.metrics }

func (a *App) Coordinator() *txflow.Coordinator { return a.coord }

// SignerAddress is the connected account, or "" when no key is configured.
func (a *App) SignerAddress() string {
	if a.signer == nil {
		return ""
	}
	return a.signer.Address()
}

// account returns the views for owner, creating them on first use and
// evicting the least recently used owner past maxAccounts.
func (a *App) account(owner string) *account {
	owner = crypto.NormalizeAddress(owner)

	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.accounts[owner]; ok {
		a.touch(owner)
		return acc
	}
	acc := &account{
		items:   views.NewOwnedItemsView(a.bus, a.fetcher, owner, a.cfg.Contract.ItemType, a.viewOptions()),
		balance: views.NewBalanceView(a.bus, a.client, owner, a.viewOptions()),
	}
	a.accounts[owner] = acc
	a.lru = append(a.lru, owner)
	for len(a.lru) > maxAccounts {
		oldest := a.lru[0]
		a.lru = a.lru[1:]
		a.accounts[oldest].close()
		delete(a.accounts, oldest)
	}
	return acc
}

func (a *App) touch(owner string) {
	for i, o := range a.lru {
		if o == owner {
			a.lru = append(append(a.lru[:i:i], a.lru[i+1:]...), owner)
			return
		}
	}
}

// Listings implements api.Backend.
func (a *App) Listings(ctx context.Context, refresh bool) views.State[[]index.ListingRecord] {
	if refresh {
		if err := a.listings.Refresh(ctx); err != nil && !txflow.IsConfiguration(err) {
			a.log.Debugw("listings_refresh_failed", "err", err)
		}
	}
	return a.listings.Snapshot()
}

// OwnedItems refetches owner's items. A failed fetch returns the error
// alongside nothing; the view keeps its previous records.
func (a *App) OwnedItems(ctx context.Context, owner string) ([]index.OwnedItemRecord, error) {
	acc := a.account(owner)
	if err := acc.items.Refresh(ctx); err != nil {
		return nil, err
	}
	return acc.items.Snapshot().Records, nil
}

func (a *App) Balance(ctx context.Context, owner string) (views.BalanceRecord, error) {
	acc := a.account(owner)
	if err := acc.balance.Refresh(ctx); err != nil {
		return views.BalanceRecord{}, err
	}
	return acc.balance.Snapshot().Records, nil
}

// Submit starts action for the configured signer without waiting.
func (a *App) Submit(ctx context.Context, action txflow.Action) *txflow.Lifecycle {
	return a.coord.Start(ctx, a.signer, action)
}

// Run drives action to a terminal state for the configured signer.
func (a *App) Run(ctx context.Context, action txflow.Action) *txflow.Lifecycle {
	return a.coord.Run(ctx, a.signer, action)
}

func (a *App) Lifecycle(id string) (*txflow.Lifecycle, bool) {
	return a.coord.Registry().Get(id)
}

// RecentLifecycles merges in-memory lifecycles with journaled outcomes from
// earlier runs, newest first.
func (a *App) RecentLifecycles(limit int) []txflow.Snapshot {
	if limit <= 0 {
		limit = defaultRecent
	}
	out := a.coord.Registry().Recent(limit)
	if len(out) >= limit {
		return out
	}
	stored, err := a.store.RecentOutcomes(limit)
	if err != nil {
		a.log.Warnw("recent_outcomes_failed", "err", err)
		return out
	}
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s.ID] = true
	}
	for _, s := range stored {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (a *App) ConfigStatus() api.ConfigStatus {
	endpoint, _ := a.cfg.RPCEndpoint()
	st := api.ConfigStatus{
		Network:  a.cfg.Network.Name,
		RPCURL:   endpoint,
		Signer:   a.SignerAddress(),
		Problems: a.cfg.Problems(),
	}
	if st.Signer != "" {
		st.Operator = txflow.IsOperator(a.cfg.Market.OperatorAddress, st.Signer)
	}
	return st
}

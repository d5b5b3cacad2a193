package market

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/uhyunpark/objmarket/params"
	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/ledger/ledgertest"
	"github.com/uhyunpark/objmarket/pkg/storage"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

const (
	itemType    = "0x9::nft::NFT"
	listingType = "0x9::market::Listing"
	testSeed    = "0x0101010101010101010101010101010101010101010101010101010101010101"
)

var marketplace = "0x" + strings.Repeat("ab", 32)

func testConfig() params.Config {
	cfg := params.Default()
	cfg.Contract.PackageID = "0x9"
	cfg.Contract.ItemType = itemType
	cfg.Contract.ListingType = listingType
	cfg.Market.MarketplaceAddress = marketplace
	cfg.Node.DataDir = ""
	cfg.Node.SignerKey = testSeed
	cfg.Timing.MintedSettle = time.Millisecond
	cfg.Timing.ListedSettle = time.Millisecond
	cfg.Timing.TradeSettle = time.Millisecond
	cfg.Timing.RefreshInterval = time.Hour
	return cfg
}

func newLedger() *ledgertest.Ledger {
	return ledgertest.New(ledgertest.Contract{
		Package:     "0x9",
		ItemType:    itemType,
		ListingType: listingType,
		Marketplace: marketplace,
	})
}

func newApp(t *testing.T, cfg params.Config, led *ledgertest.Ledger, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithClient(led)}, opts...)
	app, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func mustConfirm(t *testing.T, lc *txflow.Lifecycle) txflow.Snapshot {
	t.Helper()
	snap := lc.Snapshot()
	if snap.State != txflow.StateConfirmed {
		t.Fatalf("%s ended %s: %s", snap.Action, snap.State, snap.Error)
	}
	return snap
}

func TestMintListCancel(t *testing.T) {
	led := newLedger()
	app := newApp(t, testConfig(), led)
	ctx := context.Background()
	owner := app.SignerAddress()

	minted := mustConfirm(t, app.Run(ctx, txflow.MintAction{Name: "Cat", ImageURL: "https://img/cat"}))

	items, err := app.OwnedItems(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != minted.ProducedID || items[0].Name != "Cat" {
		t.Fatalf("items after mint = %+v", items)
	}

	listed := mustConfirm(t, app.Run(ctx, txflow.ListAction{ItemID: minted.ProducedID, Price: "1.5"}))

	st := app.Listings(ctx, true)
	if len(st.Records) != 1 {
		t.Fatalf("listings = %+v", st)
	}
	rec := st.Records[0]
	if rec.ID != listed.ProducedID || rec.PriceBaseUnits != 1_500_000_000 || rec.Name != "Cat" {
		t.Errorf("listing = %+v", rec)
	}
	if items, _ := app.OwnedItems(ctx, owner); len(items) != 0 {
		t.Errorf("listed item still owned: %+v", items)
	}

	mustConfirm(t, app.Run(ctx, txflow.CancelAction{ListingID: rec.ID}))
	if st := app.Listings(ctx, true); len(st.Records) != 0 {
		t.Errorf("listings after cancel = %+v", st.Records)
	}
	items, _ = app.OwnedItems(ctx, strings.ToUpper(owner[2:]))
	if len(items) != 1 || items[0].ID != minted.ProducedID {
		t.Errorf("items after cancel = %+v", items)
	}
}

func TestSettlePublishesReachBus(t *testing.T) {
	led := newLedger()
	app := newApp(t, testConfig(), led)

	mustConfirm(t, app.Run(context.Background(), txflow.MintAction{Name: "Cat", ImageURL: "https://img/cat"}))

	deadline := time.Now().Add(2 * time.Second)
	for app.Bus().Published(events.TopicItemMinted) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("item-minted never published")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNoSignerKey(t *testing.T) {
	cfg := testConfig()
	cfg.Node.SignerKey = ""
	app := newApp(t, cfg, newLedger())

	snap := app.Run(context.Background(), txflow.MintAction{Name: "Cat", ImageURL: "https://img/cat"}).Snapshot()
	if snap.State != txflow.StateFailed || snap.Error != "Connect wallet" {
		t.Errorf("snapshot = %+v", snap)
	}
	if st := app.ConfigStatus(); st.Signer != "" || st.Operator {
		t.Errorf("status = %+v", st)
	}
}

func TestBadSignerKey(t *testing.T) {
	cfg := testConfig()
	cfg.Node.SignerKey = "0x1234"
	if _, err := New(context.Background(), cfg, WithClient(newLedger())); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestConfigStatus(t *testing.T) {
	signer, err := crypto.FromSeedHex(testSeed)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Contract.PackageID = ""
	cfg.Market.OperatorAddress = strings.ToUpper(signer.Address()[2:])
	app := newApp(t, cfg, newLedger())

	st := app.ConfigStatus()
	if st.Network != "testnet" || st.RPCURL != "https://fullnode.testnet.sui.io" {
		t.Errorf("network = %s %s", st.Network, st.RPCURL)
	}
	if st.Signer != signer.Address() || !st.Operator {
		t.Errorf("signer = %s operator = %v", st.Signer, st.Operator)
	}
	if len(st.Problems) != 1 || st.Problems[0] != "Set PACKAGE_ID in env" {
		t.Errorf("problems = %v", st.Problems)
	}

	snap := app.Run(context.Background(), txflow.WithdrawAction{}).Snapshot()
	if snap.ErrorKind != txflow.KindConfiguration || snap.Error != "Set PACKAGE_ID in env" {
		t.Errorf("withdraw = %+v", snap)
	}
}

func TestListingsDisabledWithoutMarketplace(t *testing.T) {
	cfg := testConfig()
	cfg.Market.MarketplaceAddress = ""
	led := newLedger()
	app := newApp(t, cfg, led)

	app.Start(context.Background())
	st := app.Listings(context.Background(), true)
	if st.Banner != "Set MARKETPLACE_ADDRESS in env" {
		t.Errorf("banner = %q", st.Banner)
	}
	if led.QueryCalls() != 0 {
		t.Errorf("disabled view queried the ledger %d times", led.QueryCalls())
	}
}

func TestBalance(t *testing.T) {
	led := newLedger()
	app := newApp(t, testConfig(), led)
	led.SetBalance(app.SignerAddress(), 2_000_000_000)

	bal, err := app.Balance(context.Background(), app.SignerAddress())
	if err != nil {
		t.Fatal(err)
	}
	if bal.BaseUnits != 2_000_000_000 || bal.Display != "2.0000" {
		t.Errorf("balance = %+v", bal)
	}
}

func TestRecentLifecyclesSurviveRestart(t *testing.T) {
	cfg := testConfig()
	cfg.Node.DataDir = t.TempDir()
	led := newLedger()

	first, err := New(context.Background(), cfg, WithClient(led))
	if err != nil {
		t.Fatal(err)
	}
	minted := mustConfirm(t, first.Run(context.Background(), txflow.MintAction{Name: "Cat", ImageURL: "https://img/cat"}))
	first.Close()

	second := newApp(t, cfg, led)
	recent := second.RecentLifecycles(10)
	if len(recent) != 1 || recent[0].ID != minted.ID || recent[0].State != txflow.StateConfirmed {
		t.Fatalf("recent = %+v", recent)
	}
	if _, ok := second.Lifecycle(minted.ID); ok {
		t.Error("journaled lifecycle should not be live in the registry")
	}
}

func TestRecentLifecyclesMergesAndLimits(t *testing.T) {
	store := storage.NewMemoryStore()
	led := newLedger()
	app := newApp(t, testConfig(), led, WithStore(store))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustConfirm(t, app.Run(ctx, txflow.MintAction{Name: "Cat", ImageURL: "https://img/cat"}))
	}
	recent := app.RecentLifecycles(2)
	if len(recent) != 2 {
		t.Fatalf("recent = %d", len(recent))
	}
	if recent[0].StartedAt.Before(recent[1].StartedAt) {
		t.Error("recent lifecycles not newest first")
	}
	if all := app.RecentLifecycles(10); len(all) != 3 {
		t.Errorf("recent(10) = %d, want 3 without duplicates", len(all))
	}
}

func TestAccountViewsAreBounded(t *testing.T) {
	app := newApp(t, testConfig(), newLedger())
	ctx := context.Background()
	for i := 0; i < maxAccounts+5; i++ {
		owner := fmt.Sprintf("0x%064x", i+1)
		if _, err := app.OwnedItems(ctx, owner); err != nil {
			t.Fatal(err)
		}
	}
	app.mu.Lock()
	n := len(app.accounts)
	app.mu.Unlock()
	if n != maxAccounts {
		t.Errorf("accounts = %d, want %d", n, maxAccounts)
	}
}

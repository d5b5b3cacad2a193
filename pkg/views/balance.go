package views

import (
	"context"

	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/ledger"
)

const balanceDecimals = 4

// BalanceRecord is an account's gas-coin balance.
type BalanceRecord struct {
	BaseUnits uint64 `json:"baseUnits"`
	Display   string `json:"display"`
}

// BalanceView tracks the gas-coin balance of one account. Trades move coins,
// so it also refreshes when listings change.
type BalanceView struct {
	*base[BalanceRecord]
	owner string
}

func NewBalanceView(bus *events.Bus, client ledger.Client, owner string, opts Options) *BalanceView {
	if owner != "" {
		owner = crypto.NormalizeAddress(owner)
	}
	fetch := func(ctx context.Context) (BalanceRecord, error) {
		if owner == "" {
			return zeroBalance(), nil
		}
		bal, err := client.GetBalance(ctx, owner)
		if err != nil {
			return zeroBalance(), err
		}
		return BalanceRecord{BaseUnits: bal.TotalBalance, Display: index.FormatDisplay(bal.TotalBalance, balanceDecimals)}, nil
	}
	v := &BalanceView{
		base:  newBase("balance", "balance/"+owner, "Failed to fetch balance", fetch, opts),
		owner: owner,
	}
	if v.state.Records.Display == "" {
		v.state.Records = zeroBalance()
	}
	v.subscribe(bus, events.TopicListingChanged)
	return v
}

func zeroBalance() BalanceRecord {
	return BalanceRecord{Display: "0"}
}

func (v *BalanceView) Refresh(ctx context.Context) error { return v.refresh(ctx) }

func (v *BalanceView) Snapshot() State[BalanceRecord] { return v.snapshot() }

func (v *BalanceView) Close() { v.close() }

func (v *BalanceView) Wait() { v.wait() }

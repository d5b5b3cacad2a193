package txflow

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/uhyunpark/objmarket/params"
	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/ledger"
)

type ActionKind string

const (
	ActionMint     ActionKind = "mint"
	ActionList     ActionKind = "list"
	ActionBuy      ActionKind = "buy"
	ActionCancel   ActionKind = "cancel"
	ActionWithdraw ActionKind = "withdraw"
)

// buildEnv is what an action may consult while building its commands.
type buildEnv struct {
	contract params.Contract
	client   ledger.Client
}

// Action is a user intent the coordinator can turn into a transaction.
type Action interface {
	Kind() ActionKind
	// build validates input and returns the commands to submit. It may read
	// from the ledger but never writes.
	build(ctx context.Context, env buildEnv) ([]ledger.Command, *Error)
}

func moveCall(c params.Contract, module, fn string, args ...ledger.Argument) ledger.Command {
	if args == nil {
		args = []ledger.Argument{}
	}
	return ledger.Command{MoveCall: &ledger.MoveCall{
		Package:   c.PackageID,
		Module:    module,
		Function:  fn,
		Arguments: args,
	}}
}

// MintAction creates a new item owned by the sender.
type MintAction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

func (MintAction) Kind() ActionKind { return ActionMint }

func (a MintAction) build(_ context.Context, env buildEnv) ([]ledger.Command, *Error) {
	name := strings.TrimSpace(a.Name)
	url := strings.TrimSpace(a.ImageURL)
	if name == "" || url == "" {
		return nil, validationError("Name and image URL are required")
	}
	if env.contract.ItemModule == "" || env.contract.MintFn == "" {
		return nil, configurationError("Set MODULE_NFT and FN_MINT in env")
	}
	return []ledger.Command{
		moveCall(env.contract, env.contract.ItemModule, env.contract.MintFn,
			ledger.PureString(name),
			ledger.PureString(a.Description),
			ledger.PureString(url),
		),
	}, nil
}

// ListAction offers an owned item for sale at a display-unit price.
type ListAction struct {
	ItemID string `json:"itemId"`
	Price  string `json:"price"`
}

func (ListAction) Kind() ActionKind { return ActionList }

func (a ListAction) build(_ context.Context, env buildEnv) ([]ledger.Command, *Error) {
	itemID := strings.TrimSpace(a.ItemID)
	if itemID == "" {
		return nil, validationError("NFT object ID is required")
	}
	units, err := index.ParseDisplayAmount(a.Price)
	if err != nil || units == 0 {
		return nil, validationError("Enter a valid positive price")
	}
	if env.contract.MarketModule == "" || env.contract.ListFn == "" {
		return nil, configurationError("Set MODULE_MARKET and FN_LIST in env")
	}
	return []ledger.Command{
		moveCall(env.contract, env.contract.MarketModule, env.contract.ListFn,
			ledger.Object(itemID),
			ledger.PureU64(units),
		),
	}, nil
}

// BuyAction purchases a listing. The price is taken from PriceBaseUnits,
// then PriceDisplay, and otherwise read from the listing object itself.
type BuyAction struct {
	ListingID      string  `json:"listingId"`
	PriceBaseUnits uint64  `json:"priceBaseUnits,omitempty"`
	PriceDisplay   float64 `json:"priceDisplay,omitempty"`
}

// BuyListing builds a purchase of a projected listing at its exact price.
func BuyListing(rec index.ListingRecord) BuyAction {
	return BuyAction{ListingID: rec.ID, PriceBaseUnits: rec.PriceBaseUnits}
}

func (BuyAction) Kind() ActionKind { return ActionBuy }

func (a BuyAction) build(ctx context.Context, env buildEnv) ([]ledger.Command, *Error) {
	listingID := strings.TrimSpace(a.ListingID)
	if listingID == "" {
		return nil, validationError("Listing object ID is required")
	}
	if env.contract.MarketModule == "" || env.contract.BuyFn == "" {
		return nil, configurationError("Set MODULE_MARKET and FN_BUY in env")
	}

	price, perr := a.resolvePrice(ctx, env.client, listingID)
	if perr != nil {
		return nil, perr
	}
	return []ledger.Command{
		{SplitCoins: &ledger.SplitCoins{Coin: ledger.Gas(), Amounts: []ledger.Argument{ledger.PureU64(price)}}},
		moveCall(env.contract, env.contract.MarketModule, env.contract.BuyFn,
			ledger.Object(listingID),
			ledger.Result(0),
		),
	}, nil
}

func (a BuyAction) resolvePrice(ctx context.Context, client ledger.Client, listingID string) (uint64, *Error) {
	if a.PriceBaseUnits > 0 {
		return a.PriceBaseUnits, nil
	}
	if a.PriceDisplay > 0 {
		units, err := index.FromDisplay(a.PriceDisplay)
		if err != nil || units == 0 {
			return 0, validationError("Enter a valid positive price")
		}
		return units, nil
	}

	obj, err := client.GetObject(ctx, listingID)
	if err != nil {
		kind := KindRemoteUnavailable
		if errors.Is(err, ledger.ErrObjectNotFound) {
			kind = KindValidation
		}
		return 0, &Error{Kind: kind, Message: "Could not fetch listing price", Err: err}
	}
	price := gjson.GetBytes(obj.Fields, "price")
	raw := price.String()
	if price.Type == gjson.Number {
		raw = price.Raw
	}
	units, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || units == 0 {
		return 0, validationError("Could not fetch listing price")
	}
	return units, nil
}

// CancelAction withdraws the sender's own listing.
type CancelAction struct {
	ListingID string `json:"listingId"`
}

func (CancelAction) Kind() ActionKind { return ActionCancel }

func (a CancelAction) build(_ context.Context, env buildEnv) ([]ledger.Command, *Error) {
	listingID := strings.TrimSpace(a.ListingID)
	if listingID == "" {
		return nil, validationError("Listing object ID is required")
	}
	if env.contract.MarketModule == "" || env.contract.CancelFn == "" {
		return nil, configurationError("Set MODULE_MARKET and FN_CANCEL in env")
	}
	return []ledger.Command{
		moveCall(env.contract, env.contract.MarketModule, env.contract.CancelFn, ledger.Object(listingID)),
	}, nil
}

// WithdrawAction collects accumulated marketplace fees. Operator only.
type WithdrawAction struct{}

func (WithdrawAction) Kind() ActionKind { return ActionWithdraw }

func (WithdrawAction) build(_ context.Context, env buildEnv) ([]ledger.Command, *Error) {
	if env.contract.MarketModule == "" || env.contract.WithdrawFn == "" {
		return nil, configurationError("Set MODULE_MARKET and FN_WITHDRAW in env")
	}
	return []ledger.Command{
		moveCall(env.contract, env.contract.MarketModule, env.contract.WithdrawFn),
	}, nil
}

// IsOperator reports whether addr may run operator-only actions.
func IsOperator(operator, addr string) bool {
	return crypto.SameAddress(operator, addr)
}

// Package ledgertest provides an in-memory ledger for tests. It implements
// ledger.Client and executes the marketplace entry functions against a
// small object store.
package ledgertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/uhyunpark/objmarket/pkg/ledger"
)

// Contract describes the on-ledger names the fake understands.
type Contract struct {
	Package     string
	ItemType    string
	ListingType string
	Marketplace string // address that holds listings
}

// Submission records one ExecuteTransaction call.
type Submission struct {
	Tx         *ledger.Transaction
	Signatures []string
	Digest     string
}

type Ledger struct {
	mu sync.Mutex

	contract Contract
	objects  map[string]ledger.RemoteObject
	order    []string // creation order, for stable listing
	effects  map[string]ledger.Confirmation
	balances map[string]uint64
	seq      int

	// Fault injection. Zero values mean normal operation.
	//
	// QueryErr fails QueryOwnedObjects; QueryErrOnCall limits that to the
	// n-th call (1-based). PageOverride replays fixed pages, addressed by
	// cursor index, instead of querying the store.
	QueryErr       error
	QueryErrOnCall int
	SubmitErr      error
	OmitDigest     bool
	NeverConfirm   bool
	PageOverride   []ledger.Page
	GetObjectErr   error

	queryCalls  int
	submissions []Submission
}

var _ ledger.Client = (*Ledger)(nil)

func New(c Contract) *Ledger {
	return &Ledger{
		contract: c,
		objects:  make(map[string]ledger.RemoteObject),
		effects:  make(map[string]ledger.Confirmation),
		balances: make(map[string]uint64),
	}
}

// Put stores obj as-is, replacing any object with the same id.
func (l *Ledger) Put(obj ledger.RemoteObject) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(obj)
}

func (l *Ledger) put(obj ledger.RemoteObject) {
	if _, ok := l.objects[obj.ID]; !ok {
		l.order = append(l.order, obj.ID)
	}
	l.objects[obj.ID] = obj
}

func (l *Ledger) SetBalance(owner string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] = amount
}

func (l *Ledger) QueryCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queryCalls
}

func (l *Ledger) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}

func (l *Ledger) Object(id string) (ledger.RemoteObject, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	obj, ok := l.objects[id]
	return obj, ok
}

func (l *Ledger) QueryOwnedObjects(ctx context.Context, owner, typeFilter, cursor string, limit int) (ledger.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queryCalls++
	if err := ctx.Err(); err != nil {
		return ledger.Page{}, err
	}
	if l.QueryErr != nil && (l.QueryErrOnCall == 0 || l.QueryErrOnCall == l.queryCalls) {
		return ledger.Page{}, &ledger.CallError{Method: "suix_getOwnedObjects", Err: l.QueryErr}
	}

	if l.PageOverride != nil {
		idx := 0
		if cursor != "" {
			idx, _ = strconv.Atoi(cursor)
		}
		if idx >= len(l.PageOverride) {
			return ledger.Page{}, nil
		}
		return l.PageOverride[idx], nil
	}

	var matched []ledger.RemoteObject
	for _, id := range l.order {
		obj := l.objects[id]
		if obj.Owner != owner {
			continue
		}
		if typeFilter != "" && obj.Type != typeFilter {
			continue
		}
		matched = append(matched, obj)
	}

	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	if limit <= 0 {
		limit = 50
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := ledger.Page{Items: append([]ledger.RemoteObject(nil), matched[start:end]...)}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (l *Ledger) GetObject(ctx context.Context, id string) (ledger.RemoteObject, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.GetObjectErr != nil {
		return ledger.RemoteObject{}, &ledger.CallError{Method: "sui_getObject", Err: l.GetObjectErr}
	}
	obj, ok := l.objects[id]
	if !ok {
		return ledger.RemoteObject{}, fmt.Errorf("%w: %s", ledger.ErrObjectNotFound, id)
	}
	return obj, nil
}

func (l *Ledger) GetBalance(ctx context.Context, owner string) (ledger.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ledger.Balance{CoinType: "0x2::sui::SUI", TotalBalance: l.balances[owner]}, nil
}

func (l *Ledger) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (ledger.SubmitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SubmitErr != nil {
		return ledger.SubmitResult{}, &ledger.CallError{Method: "sui_executeTransactionBlock", Err: l.SubmitErr}
	}
	tx, err := ledger.DeserializeTransaction(txBytes)
	if err != nil {
		return ledger.SubmitResult{}, &ledger.CallError{Method: "sui_executeTransactionBlock", Err: err}
	}
	if err := tx.Validate(); err != nil {
		return ledger.SubmitResult{}, &ledger.CallError{Method: "sui_executeTransactionBlock", Err: err}
	}

	l.seq++
	digest := fmt.Sprintf("digest-%d", l.seq)
	conf, err := l.apply(tx)
	if err != nil {
		return ledger.SubmitResult{}, &ledger.CallError{Method: "sui_executeTransactionBlock", Err: err}
	}
	conf.Digest = digest
	l.effects[digest] = conf
	l.submissions = append(l.submissions, Submission{Tx: tx, Signatures: signatures, Digest: digest})

	if l.OmitDigest {
		return ledger.SubmitResult{}, nil
	}
	return ledger.SubmitResult{Digest: digest}, nil
}

func (l *Ledger) WaitForConfirmation(ctx context.Context, digest string) (ledger.Confirmation, error) {
	l.mu.Lock()
	never := l.NeverConfirm
	conf, ok := l.effects[digest]
	l.mu.Unlock()

	if never || !ok {
		<-ctx.Done()
		return ledger.Confirmation{}, ctx.Err()
	}
	return conf, nil
}

func (l *Ledger) newID() string {
	l.seq++
	return fmt.Sprintf("0x%064x", l.seq)
}

// apply executes the commands of tx. Unknown targets are accepted without effect.
func (l *Ledger) apply(tx *ledger.Transaction) (ledger.Confirmation, error) {
	var conf ledger.Confirmation
	var results []uint64 // split amounts by command index
	for i, cmd := range tx.Commands {
		results = append(results, 0)
		if cmd.SplitCoins != nil {
			amt, err := cmd.SplitCoins.Amounts[0].U64()
			if err != nil {
				return conf, fmt.Errorf("bad split amount: %w", err)
			}
			results[i] = amt
			continue
		}
		call := cmd.MoveCall
		if l.contract.Package != "" && call.Package != l.contract.Package {
			return conf, fmt.Errorf("package %s not found", call.Package)
		}
		created, err := l.applyCall(tx.Sender, call, results)
		if err != nil {
			return conf, err
		}
		for _, id := range created {
			conf.Created = append(conf.Created, ledger.CreatedObject{ID: id, Owner: l.objects[id].Owner})
		}
	}
	return conf, nil
}

func (l *Ledger) applyCall(sender string, call *ledger.MoveCall, results []uint64) ([]string, error) {
	args := call.Arguments
	switch call.Function {
	case "mint":
		if len(args) < 3 {
			return nil, fmt.Errorf("mint: want 3 arguments")
		}
		id := l.newID()
		fields, _ := json.Marshal(map[string]any{
			"id":          map[string]string{"id": id},
			"name":        args[0].Value,
			"description": args[1].Value,
			"image_url":   args[2].Value,
		})
		l.put(ledger.RemoteObject{ID: id, Type: l.contract.ItemType, Owner: sender, Fields: fields})
		return []string{id}, nil

	case "list":
		if len(args) < 2 {
			return nil, fmt.Errorf("list: want 2 arguments")
		}
		item, ok := l.objects[args[0].ObjectID]
		if !ok || !strings.EqualFold(item.Owner, sender) {
			return nil, fmt.Errorf("list: %s not owned by sender", args[0].ObjectID)
		}
		price, err := args[1].U64()
		if err != nil {
			return nil, fmt.Errorf("list: bad price: %w", err)
		}
		var itemFields map[string]any
		_ = json.Unmarshal(item.Fields, &itemFields)
		id := l.newID()
		fields, _ := json.Marshal(map[string]any{
			"id":     map[string]string{"id": id},
			"price":  strconv.FormatUint(price, 10),
			"seller": sender,
			"nft":    map[string]any{"type": item.Type, "fields": itemFields},
		})
		delete(l.objects, item.ID)
		l.put(ledger.RemoteObject{ID: id, Type: l.contract.ListingType, Owner: l.contract.Marketplace, Fields: fields})
		return []string{id}, nil

	case "buy", "cancel":
		if len(args) < 1 {
			return nil, fmt.Errorf("%s: listing argument missing", call.Function)
		}
		listing, ok := l.objects[args[0].ObjectID]
		if !ok {
			return nil, fmt.Errorf("%s: listing %s not found", call.Function, args[0].ObjectID)
		}
		var lf struct {
			Price  string `json:"price"`
			Seller string `json:"seller"`
			NFT    struct {
				Type   string          `json:"type"`
				Fields json.RawMessage `json:"fields"`
			} `json:"nft"`
		}
		_ = json.Unmarshal(listing.Fields, &lf)
		newOwner := sender
		if call.Function == "buy" {
			if len(args) < 2 || args[1].Kind != ledger.ArgResult {
				return nil, fmt.Errorf("buy: payment argument missing")
			}
			price, _ := strconv.ParseUint(lf.Price, 10, 64)
			if paid := results[args[1].Index]; paid < price {
				return nil, fmt.Errorf("buy: paid %d, price %d", paid, price)
			}
		} else if !strings.EqualFold(lf.Seller, sender) {
			return nil, fmt.Errorf("cancel: sender is not the seller")
		}
		var inner struct {
			ID struct {
				ID string `json:"id"`
			} `json:"id"`
		}
		_ = json.Unmarshal(lf.NFT.Fields, &inner)
		delete(l.objects, listing.ID)
		if inner.ID.ID != "" {
			l.put(ledger.RemoteObject{ID: inner.ID.ID, Type: lf.NFT.Type, Owner: newOwner, Fields: lf.NFT.Fields})
		}
		return nil, nil
	}
	return nil, nil
}

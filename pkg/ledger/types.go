package ledger

import (
	"context"
	"encoding/json"
)

// RemoteObject is an object as reported by the ledger. Fields holds the raw
// content fields and is never modified after decoding.
type RemoteObject struct {
	ID      string          `json:"objectId"`
	Version string          `json:"version,omitempty"`
	Digest  string          `json:"digest,omitempty"`
	Type    string          `json:"type,omitempty"` // empty when the ledger reports no type
	Owner   string          `json:"owner,omitempty"`
	Fields  json.RawMessage `json:"fields,omitempty"`
}

// Page is one response of a paginated owned-objects query.
type Page struct {
	Items      []RemoteObject
	HasMore    bool
	NextCursor string // "" means no continuation token
}

type Balance struct {
	CoinType     string
	TotalBalance uint64 // base units
}

// SubmitResult is what the ledger returns on submission. Digest is empty when
// the response carried none.
type SubmitResult struct {
	Digest string
}

type CreatedObject struct {
	ID    string
	Owner string
}

// Confirmation describes a transaction the ledger has executed.
type Confirmation struct {
	Digest  string
	Created []CreatedObject
}

// Client is the remote object ledger as seen by this module.
type Client interface {
	QueryOwnedObjects(ctx context.Context, owner, typeFilter, cursor string, limit int) (Page, error)
	GetObject(ctx context.Context, id string) (RemoteObject, error)
	GetBalance(ctx context.Context, owner string) (Balance, error)
	ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (SubmitResult, error)
	// WaitForConfirmation blocks until the transaction is executed or ctx is done.
	WaitForConfirmation(ctx context.Context, digest string) (Confirmation, error)
}

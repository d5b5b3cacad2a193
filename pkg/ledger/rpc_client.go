package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uhyunpark/objmarket/pkg/util"
)

const (
	DefaultPollInterval = 2 * time.Second

	requestWaitForLocalExecution = "WaitForLocalExecution"
)

// Options tune an RPCClient. Zero values pick sensible defaults.
type Options struct {
	RateLimit    float64 // requests per second; <= 0 disables limiting
	Burst        int
	PollInterval time.Duration
	Clock        util.Clock
	Logger       *zap.SugaredLogger

	// RequestTimeout bounds each call; 0 leaves only the caller's deadline.
	RequestTimeout time.Duration

	// Observe, if set, is called after every RPC with its outcome.
	Observe func(method string, took time.Duration, err error)
}

// RPCClient talks to a fullnode over JSON-RPC 2.0.
type RPCClient struct {
	rpc     *rpc.Client
	limiter *rate.Limiter
	poll    time.Duration
	timeout time.Duration
	clock   util.Clock
	log     *zap.SugaredLogger
	observe func(string, time.Duration, error)
}

var _ Client = (*RPCClient)(nil)

// Dial connects to url (http, https, ws or ipc).
func Dial(ctx context.Context, url string, opts Options) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrRemoteUnavailable, url, err)
	}
	return NewRPCClient(c, opts), nil
}

// NewRPCClient wraps an established rpc.Client.
func NewRPCClient(c *rpc.Client, opts Options) *RPCClient {
	out := &RPCClient{
		rpc:     c,
		poll:    opts.PollInterval,
		timeout: opts.RequestTimeout,
		clock:   opts.Clock,
		log:     util.Sugar(opts.Logger),
		observe: opts.Observe,
	}
	if out.poll <= 0 {
		out.poll = DefaultPollInterval
	}
	if out.clock == nil {
		out.clock = util.RealClock{}
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		out.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return out
}

func (c *RPCClient) Close() { c.rpc.Close() }

func (c *RPCClient) call(ctx context.Context, result any, method string, args ...any) error {
	start := c.clock.Now()
	err := c.doCall(ctx, result, method, args...)
	if c.observe != nil {
		c.observe(method, c.clock.Now().Sub(start), err)
	}
	return err
}

func (c *RPCClient) doCall(ctx context.Context, result any, method string, args ...any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &CallError{Method: method, Err: err}
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return &CallError{Method: method, Err: err}
	}
	return nil
}

func (c *RPCClient) QueryOwnedObjects(ctx context.Context, owner, typeFilter, cursor string, limit int) (Page, error) {
	query := OwnedObjectsQuery{Options: ObjectDataOptions{ShowType: true, ShowContent: true}}
	if typeFilter != "" {
		query.Filter = &ObjectFilter{StructType: typeFilter}
	}
	var cur *string
	if cursor != "" {
		cur = &cursor
	}
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	var resp OwnedObjectsPage
	if err := c.call(ctx, &resp, "suix_getOwnedObjects", owner, query, cur, lim); err != nil {
		return Page{}, err
	}

	page := Page{HasMore: resp.HasNextPage}
	if resp.NextCursor != nil {
		page.NextCursor = *resp.NextCursor
	}
	page.Items = make([]RemoteObject, 0, len(resp.Data))
	for _, item := range resp.Data {
		if item.Data == nil {
			// objects that errored server-side carry no data; they simply do not appear
			continue
		}
		page.Items = append(page.Items, item.Data.toRemoteObject())
	}
	return page, nil
}

func (c *RPCClient) GetObject(ctx context.Context, id string) (RemoteObject, error) {
	var resp ObjectResponse
	opts := ObjectDataOptions{ShowType: true, ShowContent: true, ShowOwner: true}
	if err := c.call(ctx, &resp, "sui_getObject", id, opts); err != nil {
		return RemoteObject{}, err
	}
	if resp.Data == nil {
		code := "notExists"
		if resp.Error != nil && resp.Error.Code != "" {
			code = resp.Error.Code
		}
		return RemoteObject{}, fmt.Errorf("%w: %s (%s)", ErrObjectNotFound, id, code)
	}
	return resp.Data.toRemoteObject(), nil
}

func (c *RPCClient) GetBalance(ctx context.Context, owner string) (Balance, error) {
	var resp BalanceResponse
	if err := c.call(ctx, &resp, "suix_getBalance", owner); err != nil {
		return Balance{}, err
	}
	total := uint64(0)
	if resp.TotalBalance != "" {
		v, err := strconv.ParseUint(resp.TotalBalance, 10, 64)
		if err != nil {
			return Balance{}, fmt.Errorf("%w: bad totalBalance %q", ErrRemoteUnavailable, resp.TotalBalance)
		}
		total = v
	}
	return Balance{CoinType: resp.CoinType, TotalBalance: total}, nil
}

func (c *RPCClient) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (SubmitResult, error) {
	var resp TransactionResponse
	err := c.call(ctx, &resp, "sui_executeTransactionBlock",
		base64.StdEncoding.EncodeToString(txBytes),
		signatures,
		TransactionOptions{ShowEffects: true},
		requestWaitForLocalExecution,
	)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Digest: resp.Digest}, nil
}

// WaitForConfirmation polls until the ledger reports effects for digest.
// Lookup errors are treated as "not yet indexed" and retried; the caller
// bounds the wait through ctx.
func (c *RPCClient) WaitForConfirmation(ctx context.Context, digest string) (Confirmation, error) {
	attempt := 0
	for {
		attempt++
		var resp TransactionResponse
		err := c.call(ctx, &resp, "sui_getTransactionBlock", digest, TransactionOptions{ShowEffects: true})
		switch {
		case err == nil && resp.Effects != nil:
			return confirmationFrom(digest, resp.Effects)
		case err != nil && ctx.Err() != nil:
			return Confirmation{}, ctx.Err()
		case err != nil:
			c.log.Debugw("confirmation_pending", "digest", digest, "attempt", attempt, "err", err)
		}

		select {
		case <-ctx.Done():
			return Confirmation{}, ctx.Err()
		case <-c.clock.After(c.poll):
		}
	}
}

func confirmationFrom(digest string, fx *TransactionEffects) (Confirmation, error) {
	if fx.Status.Status != "" && fx.Status.Status != "success" {
		msg := fx.Status.Error
		if msg == "" {
			msg = fx.Status.Status
		}
		return Confirmation{Digest: digest}, fmt.Errorf("%w: %s", ErrExecutionFailed, msg)
	}
	conf := Confirmation{Digest: digest}
	for _, ref := range fx.Created {
		conf.Created = append(conf.Created, CreatedObject{
			ID:    ref.Reference.ObjectID,
			Owner: ownerAddress(ref.Owner),
		})
	}
	return conf, nil
}

// IsRemoteUnavailable reports whether err came from failing to reach the ledger.
func IsRemoteUnavailable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// fakeNode serves the fullnode methods used by RPCClient.
type fakeNode struct {
	mu sync.Mutex

	owned      []ObjectResponse
	objects    map[string]*ObjectData
	balance    string
	digest     string
	pendingFor int // getTransactionBlock fails this many times before answering
	effects    *TransactionEffects
	failOwned  bool

	ownedCalls int
	lastQuery  OwnedObjectsQuery
	submitted  []string
	sigs       [][]string
}

type suixAPI struct{ n *fakeNode }
type suiAPI struct{ n *fakeNode }

func (a *suixAPI) GetOwnedObjects(owner string, query OwnedObjectsQuery, cursor *string, limit *int) (*OwnedObjectsPage, error) {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	a.n.ownedCalls++
	a.n.lastQuery = query
	if a.n.failOwned {
		return nil, errors.New("node overloaded")
	}
	size := 2
	if limit != nil {
		size = *limit
	}
	start := 0
	if cursor != nil {
		start, _ = strconv.Atoi(*cursor)
	}
	end := start + size
	if end > len(a.n.owned) {
		end = len(a.n.owned)
	}
	page := &OwnedObjectsPage{Data: a.n.owned[start:end]}
	if end < len(a.n.owned) {
		next := strconv.Itoa(end)
		page.NextCursor = &next
		page.HasNextPage = true
	}
	return page, nil
}

func (a *suixAPI) GetBalance(owner string) (*BalanceResponse, error) {
	return &BalanceResponse{CoinType: "0x2::sui::SUI", TotalBalance: a.n.balance}, nil
}

func (a *suiAPI) GetObject(id string, opts ObjectDataOptions) (*ObjectResponse, error) {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	if d, ok := a.n.objects[id]; ok {
		return &ObjectResponse{Data: d}, nil
	}
	return &ObjectResponse{Error: &ObjectError{Code: "notExists", ObjectID: id}}, nil
}

func (a *suiAPI) ExecuteTransactionBlock(txB64 string, sigs []string, opts TransactionOptions, requestType string) (*TransactionResponse, error) {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	a.n.submitted = append(a.n.submitted, txB64)
	a.n.sigs = append(a.n.sigs, sigs)
	return &TransactionResponse{Digest: a.n.digest}, nil
}

func (a *suiAPI) GetTransactionBlock(digest string, opts TransactionOptions) (*TransactionResponse, error) {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	if a.n.pendingFor > 0 {
		a.n.pendingFor--
		return nil, fmt.Errorf("Could not find the referenced transaction [%s]", digest)
	}
	return &TransactionResponse{Digest: digest, Effects: a.n.effects}, nil
}

func newTestClient(t *testing.T, n *fakeNode) *RPCClient {
	t.Helper()
	srv := rpc.NewServer()
	if err := srv.RegisterName("suix", &suixAPI{n}); err != nil {
		t.Fatal(err)
	}
	if err := srv.RegisterName("sui", &suiAPI{n}); err != nil {
		t.Fatal(err)
	}
	c := NewRPCClient(rpc.DialInProc(srv), Options{PollInterval: time.Millisecond})
	t.Cleanup(func() {
		c.Close()
		srv.Stop()
	})
	return c
}

func moveObject(id, typ, fields string) ObjectResponse {
	return ObjectResponse{Data: &ObjectData{
		ObjectID: id,
		Type:     typ,
		Content:  &MoveContent{DataType: "moveObject", Type: typ, Fields: json.RawMessage(fields)},
	}}
}

func TestQueryOwnedObjectsPaging(t *testing.T) {
	n := &fakeNode{owned: []ObjectResponse{
		moveObject("0x1", "0x9::nft::NFT", `{"name":"a"}`),
		moveObject("0x2", "0x9::nft::NFT", `{"name":"b"}`),
		{Error: &ObjectError{Code: "deleted"}},
	}}
	c := newTestClient(t, n)
	ctx := context.Background()

	first, err := c.QueryOwnedObjects(ctx, "0xowner", "0x9::nft::NFT", "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Items) != 2 || !first.HasMore || first.NextCursor != "2" {
		t.Fatalf("first page = %+v", first)
	}
	if first.Items[0].ID != "0x1" || first.Items[0].Type != "0x9::nft::NFT" {
		t.Errorf("item = %+v", first.Items[0])
	}
	if string(first.Items[1].Fields) != `{"name":"b"}` {
		t.Errorf("fields = %s", first.Items[1].Fields)
	}
	if n.lastQuery.Filter == nil || n.lastQuery.Filter.StructType != "0x9::nft::NFT" {
		t.Errorf("filter not sent: %+v", n.lastQuery)
	}
	if !n.lastQuery.Options.ShowContent || !n.lastQuery.Options.ShowType {
		t.Errorf("options not sent: %+v", n.lastQuery.Options)
	}

	second, err := c.QueryOwnedObjects(ctx, "0xowner", "0x9::nft::NFT", first.NextCursor, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Items) != 0 || second.HasMore || second.NextCursor != "" {
		t.Errorf("second page = %+v, want errored entry skipped and no continuation", second)
	}
}

func TestQueryOwnedObjectsFailure(t *testing.T) {
	c := newTestClient(t, &fakeNode{failOwned: true})

	_, err := c.QueryOwnedObjects(context.Background(), "0xowner", "", "", 50)
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable", err)
	}
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Method != "suix_getOwnedObjects" {
		t.Errorf("err = %#v, want CallError for suix_getOwnedObjects", err)
	}
}

func TestGetObject(t *testing.T) {
	n := &fakeNode{objects: map[string]*ObjectData{
		"0xl1": {
			ObjectID: "0xl1",
			Owner:    json.RawMessage(`{"AddressOwner":"0xmarket"}`),
			Content:  &MoveContent{DataType: "moveObject", Type: "0x9::market::Listing", Fields: json.RawMessage(`{"price":"7"}`)},
		},
	}}
	c := newTestClient(t, n)

	obj, err := c.GetObject(context.Background(), "0xl1")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if obj.Type != "0x9::market::Listing" {
		t.Errorf("Type = %q, want content type fallback", obj.Type)
	}
	if obj.Owner != "0xmarket" {
		t.Errorf("Owner = %q, want 0xmarket", obj.Owner)
	}

	_, err = c.GetObject(context.Background(), "0xmissing")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestGetBalance(t *testing.T) {
	c := newTestClient(t, &fakeNode{balance: "2500000000"})

	bal, err := c.GetBalance(context.Background(), "0xowner")
	if err != nil {
		t.Fatal(err)
	}
	if bal.TotalBalance != 2_500_000_000 {
		t.Errorf("TotalBalance = %d, want 2500000000", bal.TotalBalance)
	}
}

func TestExecuteAndConfirm(t *testing.T) {
	n := &fakeNode{
		digest:     "D1",
		pendingFor: 2,
		effects: &TransactionEffects{
			Status: ExecutionStatus{Status: "success"},
			Created: []OwnedObjectRef{
				{Owner: json.RawMessage(`{"AddressOwner":"0xme"}`), Reference: ObjectRef{ObjectID: "0xnew"}},
				{Reference: ObjectRef{ObjectID: "0xother"}},
			},
		},
	}
	c := newTestClient(t, n)
	ctx := context.Background()

	res, err := c.ExecuteTransaction(ctx, []byte(`{"sender":"0xme"}`), []string{"sig"})
	if err != nil {
		t.Fatalf("ExecuteTransaction: %v", err)
	}
	if res.Digest != "D1" {
		t.Errorf("Digest = %q, want D1", res.Digest)
	}
	decoded, _ := base64.StdEncoding.DecodeString(n.submitted[0])
	if string(decoded) != `{"sender":"0xme"}` {
		t.Errorf("submitted bytes = %s", decoded)
	}

	conf, err := c.WaitForConfirmation(ctx, res.Digest)
	if err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	if len(conf.Created) != 2 || conf.Created[0].ID != "0xnew" || conf.Created[0].Owner != "0xme" {
		t.Errorf("Created = %+v", conf.Created)
	}
}

func TestExecuteWithoutDigest(t *testing.T) {
	c := newTestClient(t, &fakeNode{})

	res, err := c.ExecuteTransaction(context.Background(), []byte("{}"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Digest != "" {
		t.Errorf("Digest = %q, want empty", res.Digest)
	}
}

func TestWaitForConfirmationFailedEffects(t *testing.T) {
	c := newTestClient(t, &fakeNode{effects: &TransactionEffects{
		Status: ExecutionStatus{Status: "failure", Error: "InsufficientCoinBalance"},
	}})

	_, err := c.WaitForConfirmation(context.Background(), "D2")
	if !errors.Is(err, ErrExecutionFailed) {
		t.Errorf("err = %v, want ErrExecutionFailed", err)
	}
}

func TestWaitForConfirmationRespectsContext(t *testing.T) {
	c := newTestClient(t, &fakeNode{pendingFor: 1 << 30})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.WaitForConfirmation(ctx, "D3")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestRateLimitedClientStillAnswers(t *testing.T) {
	n := &fakeNode{balance: "1"}
	srv := rpc.NewServer()
	_ = srv.RegisterName("suix", &suixAPI{n})
	c := NewRPCClient(rpc.DialInProc(srv), Options{RateLimit: 1000, Burst: 1})
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.GetBalance(context.Background(), "0xowner"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

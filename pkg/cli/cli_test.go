package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/params"
	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/ledger/ledgertest"
	"github.com/uhyunpark/objmarket/pkg/market"
	"github.com/uhyunpark/objmarket/pkg/storage"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

const (
	testSeed    = "0101010101010101010101010101010101010101010101010101010101010101"
	itemType    = "0x9::nft::NFT"
	listingType = "0x9::market::Listing"
)

var marketplace = "0x" + strings.Repeat("ab", 32)

type harness struct {
	led   *ledgertest.Ledger
	store *storage.MemoryStore
	opts  *RootOptions
}

func writeConfig(t *testing.T, signerKey string) string {
	t.Helper()
	cfg := `contract:
  package_id: "0x9"
  item_type: "` + itemType + `"
  listing_type: "` + listingType + `"
market:
  marketplace_address: "` + marketplace + `"
node:
  data_dir: ""
  signer_key: "` + signerKey + `"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func newHarness(t *testing.T, format string) *harness {
	t.Helper()
	h := &harness{
		led: ledgertest.New(ledgertest.Contract{
			Package:     "0x9",
			ItemType:    itemType,
			ListingType: listingType,
			Marketplace: marketplace,
		}),
		store: storage.NewMemoryStore(),
	}
	h.opts = &RootOptions{
		Format:     format,
		ConfigPath: writeConfig(t, testSeed),
		OpenApp: func(ctx context.Context, cfg params.Config, log *zap.SugaredLogger) (*market.App, error) {
			return market.New(ctx, cfg, market.WithClient(h.led), market.WithStore(h.store), market.WithLogger(log))
		},
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommandWith(h.opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func signerAddress(t *testing.T) string {
	t.Helper()
	s, err := crypto.FromSeedHex(testSeed)
	require.NoError(t, err)
	return s.Address()
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "marketctl", cmd.Use)
	assert.Contains(t, cmd.Long, "SIGNER_KEY")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"mint", "list", "buy", "cancel", "withdraw", "listings", "items", "balance", "history", "status", "keygen"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t, "text")
	_, err := h.run(t, "status", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMintListCancelFlow(t *testing.T) {
	h := newHarness(t, "json")

	out, err := h.run(t, "mint", "--name", "Cat", "--image-url", "https://img/cat")
	require.NoError(t, err)
	var minted struct {
		Status string          `json:"status"`
		Data   txflow.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &minted))
	assert.Equal(t, "ok", minted.Status)
	assert.Equal(t, txflow.StateConfirmed, minted.Data.State)
	itemID := minted.Data.ProducedID
	require.NotEmpty(t, itemID)

	out, err = h.run(t, "list", itemID, "--price", "2.5")
	require.NoError(t, err)
	var listed struct {
		Data txflow.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	listingID := listed.Data.ProducedID

	h.opts.Format = "text"
	out, err = h.run(t, "listings")
	require.NoError(t, err)
	assert.Contains(t, out, listingID)
	assert.Contains(t, out, "Cat")
	assert.Contains(t, out, "2.5000")

	out, err = h.run(t, "cancel", listingID)
	require.NoError(t, err)
	assert.Contains(t, out, "Listing cancelled")

	out, err = h.run(t, "items")
	require.NoError(t, err)
	assert.Contains(t, out, itemID)

	out, err = h.run(t, "history", "-n", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3) // header plus two entries
	assert.Contains(t, lines[1], "cancel")
}

func TestActionFailureExitCode(t *testing.T) {
	h := newHarness(t, "json")

	out, err := h.run(t, "list", "0x1", "--price", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"code":"validation"`)
	assert.Contains(t, out, "Enter a valid positive price")
}

func TestWithdrawRequiresOperator(t *testing.T) {
	h := newHarness(t, "text")

	out, err := h.run(t, "withdraw")
	require.Error(t, err)
	assert.Equal(t, "Admin only", err.Error())
	assert.Contains(t, out, "Error [validation]: Admin only")
}

func TestBuyInvalidPrice(t *testing.T) {
	h := newHarness(t, "text")
	_, err := h.run(t, "buy", "0x7", "--price", "lots")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestListRequiresPrice(t *testing.T) {
	h := newHarness(t, "text")
	_, err := h.run(t, "list", "0x1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestBalance(t *testing.T) {
	h := newHarness(t, "text")
	h.led.SetBalance(signerAddress(t), 1_234_567_890)

	out, err := h.run(t, "balance")
	require.NoError(t, err)
	assert.Equal(t, "1.2346\n", out)
}

func TestItemsInvalidAddress(t *testing.T) {
	h := newHarness(t, "text")
	_, err := h.run(t, "items", "0x12")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestItemsFetchFailure(t *testing.T) {
	h := newHarness(t, "text")
	h.led.QueryErr = errors.New("node down")

	out, err := h.run(t, "items")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Failed to fetch NFTs")
}

func TestItemsWithoutItemType(t *testing.T) {
	h := newHarness(t, "text")
	t.Setenv("TYPE_NFT", "")
	cfg := "contract:\n  package_id: \"0x9\"\nnode:\n  signer_key: \"" + testSeed + "\"\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	h.opts.ConfigPath = path

	out, err := h.run(t, "items")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Set TYPE_NFT in env")
	assert.Zero(t, h.led.QueryCalls())
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "json")
	out, err := h.run(t, "status")
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Signer   string   `json:"signer"`
			Problems []string `json:"problems"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, signerAddress(t), resp.Data.Signer)
	assert.Empty(t, resp.Data.Problems)
}

func TestOpenFailure(t *testing.T) {
	h := newHarness(t, "text")
	h.opts.OpenApp = func(ctx context.Context, cfg params.Config, log *zap.SugaredLogger) (*market.App, error) {
		return nil, errors.New("dial refused")
	}
	_, err := h.run(t, "listings")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "dial refused")
}

func TestKeygen(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewKeygenCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data KeyInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, crypto.IsValidAddress(resp.Data.Address))

	s, err := crypto.FromSeedHex(resp.Data.Seed)
	require.NoError(t, err)
	assert.Equal(t, resp.Data.Address, s.Address())
}

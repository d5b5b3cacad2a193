package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/objmarket/pkg/crypto"
)

// KeyInfo is printed by keygen.
type KeyInfo struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Seed      string `json:"seed"`
}

// NewKeygenCommand creates a random signing key. It needs no configuration
// and never contacts the network.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new signing key",
		Long: `Generate a new ed25519 signing key.

Put the printed seed in SIGNER_KEY to sign actions with it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := crypto.GenerateKey()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to generate key", err)
			}
			info := KeyInfo{Address: s.Address(), PublicKey: s.PublicKeyHex(), Seed: s.SeedHex()}
			return rootOpts.formatter(cmd).Success(info, func(w io.Writer) {
				fmt.Fprintf(w, "address:    %s\n", info.Address)
				fmt.Fprintf(w, "public key: %s\n", info.PublicKey)
				fmt.Fprintf(w, "SIGNER_KEY=%s\n", info.Seed)
			})
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/objmarket/pkg/market"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

// MintOptions holds flags for the mint command.
type MintOptions struct {
	*RootOptions
	Name        string
	Description string
	ImageURL    string
}

func NewMintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a new item to the signer",
		Example: `  marketctl mint --name "Cat" --image-url https://example.com/cat.png
  marketctl mint --name "Cat" --description "a cat" --image-url https://example.com/cat.png --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts.RootOptions, cmd, txflow.MintAction{
				Name:        opts.Name,
				Description: opts.Description,
				ImageURL:    opts.ImageURL,
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "item name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "item description")
	cmd.Flags().StringVar(&opts.ImageURL, "image-url", "", "item image URL")

	return cmd
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Price string
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list <item-id>",
		Short:         "List an owned item for sale",
		Example:       `  marketctl list 0x5f... --price 1.5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts.RootOptions, cmd, txflow.ListAction{ItemID: args[0], Price: opts.Price})
		},
	}

	cmd.Flags().StringVar(&opts.Price, "price", "", "price in display units, e.g. 1.5")
	_ = cmd.MarkFlagRequired("price")

	return cmd
}

// BuyOptions holds flags for the buy command.
type BuyOptions struct {
	*RootOptions
	Price     string
	BaseUnits uint64
}

func NewBuyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "buy <listing-id>",
		Short: "Buy a listing",
		Long: `Buy a listing.

The payment is taken from --base-units, then --price, and otherwise read
from the listing object itself.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			action := txflow.BuyAction{ListingID: args[0], PriceBaseUnits: opts.BaseUnits}
			if opts.Price != "" {
				display, err := strconv.ParseFloat(opts.Price, 64)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --price", err)
				}
				action.PriceDisplay = display
			}
			return runAction(opts.RootOptions, cmd, action)
		},
	}

	cmd.Flags().StringVar(&opts.Price, "price", "", "listing price in display units")
	cmd.Flags().Uint64Var(&opts.BaseUnits, "base-units", 0, "listing price in base units")

	return cmd
}

func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "cancel <listing-id>",
		Short:         "Cancel one of your listings and take the item back",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(rootOpts, cmd, txflow.CancelAction{ListingID: args[0]})
		},
	}
}

func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "withdraw",
		Short:         "Withdraw marketplace proceeds (operator only)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(rootOpts, cmd, txflow.WithdrawAction{})
		},
	}
}

// runAction drives action to a terminal state and reports it. A failed
// lifecycle is an ExitFailure error.
func runAction(opts *RootOptions, cmd *cobra.Command, action txflow.Action) error {
	return opts.withApp(cmd, func(ctx context.Context, app *market.App) error {
		snap := app.Run(ctx, action).Snapshot()
		out := opts.formatter(cmd)

		if snap.State != txflow.StateConfirmed {
			if err := out.Error(string(snap.ErrorKind), snap.Error, snap); err != nil {
				return err
			}
			return NewExitError(ExitFailure, snap.Error)
		}
		return out.Success(snap, func(w io.Writer) { printSnapshot(w, snap) })
	})
}

func printSnapshot(w io.Writer, snap txflow.Snapshot) {
	fmt.Fprintln(w, snap.Status)
	fmt.Fprintf(w, "  lifecycle: %s\n", snap.ID)
	if snap.Digest != "" {
		fmt.Fprintf(w, "  digest:    %s\n", snap.Digest)
	}
	if snap.ProducedID != "" {
		fmt.Fprintf(w, "  object:    %s\n", snap.ProducedID)
	}
}

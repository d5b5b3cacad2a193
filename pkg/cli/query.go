package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/objmarket/pkg/api"
	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/market"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

func NewListingsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "listings",
		Short:         "Show the marketplace listings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *market.App) error {
				st := app.Listings(ctx, true)
				out := rootOpts.formatter(cmd)
				switch {
				case st.Banner != "":
					_ = out.Error(string(txflow.KindConfiguration), st.Banner, nil)
					return NewExitError(ExitCommandError, st.Banner)
				case st.Error != "":
					_ = out.Error(string(txflow.KindRemoteUnavailable), st.Error, nil)
					return NewExitError(ExitFailure, st.Error)
				}
				records := st.Records
				if records == nil {
					records = []index.ListingRecord{}
				}
				return out.Success(records, func(w io.Writer) { printListings(w, records) })
			})
		},
	}
}

func printListings(w io.Writer, records []index.ListingRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No listings")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LISTING\tNAME\tPRICE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name, index.FormatDisplay(r.PriceBaseUnits, 4))
	}
	tw.Flush()
}

func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "items [address]",
		Short:         "Show items owned by an address (default: the signer)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *market.App) error {
				owner, err := ownerArg(app, args)
				if err != nil {
					return err
				}
				out := rootOpts.formatter(cmd)
				items, err := app.OwnedItems(ctx, owner)
				if txflow.IsConfiguration(err) {
					_ = out.Error(string(txflow.KindConfiguration), err.Error(), nil)
					return NewExitError(ExitCommandError, err.Error())
				}
				if err != nil {
					_ = out.Error(string(txflow.KindRemoteUnavailable), "Failed to fetch NFTs", err.Error())
					return WrapExitError(ExitFailure, "Failed to fetch NFTs", err)
				}
				if items == nil {
					items = []index.OwnedItemRecord{}
				}
				resp := api.ItemsResponse{Address: owner, Items: items}
				return out.Success(resp, func(w io.Writer) {
					if len(items) == 0 {
						fmt.Fprintln(w, "No items")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ITEM\tNAME")
					for _, it := range items {
						fmt.Fprintf(tw, "%s\t%s\n", it.ID, it.Name)
					}
					tw.Flush()
				})
			})
		},
	}
}

func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "balance [address]",
		Short:         "Show the gas-coin balance of an address (default: the signer)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *market.App) error {
				owner, err := ownerArg(app, args)
				if err != nil {
					return err
				}
				out := rootOpts.formatter(cmd)
				bal, err := app.Balance(ctx, owner)
				if err != nil {
					_ = out.Error(string(txflow.KindRemoteUnavailable), "Failed to fetch balance", err.Error())
					return WrapExitError(ExitFailure, "Failed to fetch balance", err)
				}
				resp := api.BalanceResponse{Address: owner, BaseUnits: bal.BaseUnits, Display: bal.Display}
				return out.Success(resp, func(w io.Writer) { fmt.Fprintln(w, bal.Display) })
			})
		},
	}
}

// ownerArg returns the address argument, or the signer's address.
func ownerArg(app *market.App, args []string) (string, error) {
	if len(args) == 1 {
		if !crypto.IsValidAddress(args[0]) {
			return "", NewExitError(ExitCommandError, fmt.Sprintf("invalid address %q", args[0]))
		}
		return crypto.NormalizeAddress(args[0]), nil
	}
	if addr := app.SignerAddress(); addr != "" {
		return addr, nil
	}
	return "", NewExitError(ExitCommandError, "Connect wallet")
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Show recent action outcomes, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *market.App) error {
				list := app.RecentLifecycles(opts.Limit)
				if list == nil {
					list = []txflow.Snapshot{}
				}
				return opts.formatter(cmd).Success(api.LifecycleList{Lifecycles: list}, func(w io.Writer) {
					if len(list) == 0 {
						fmt.Fprintln(w, "No history")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "STARTED\tACTION\tSTATE\tDETAIL")
					for _, s := range list {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.StartedAt.Format("2006-01-02 15:04:05"), s.Action, s.State, s.Status)
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of entries")

	return cmd
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the network, signer and missing configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, app *market.App) error {
				st := app.ConfigStatus()
				if st.Problems == nil {
					st.Problems = []string{}
				}
				return rootOpts.formatter(cmd).Success(st, func(w io.Writer) { printStatus(w, st) })
			})
		},
	}
}

func printStatus(w io.Writer, st api.ConfigStatus) {
	fmt.Fprintf(w, "network:  %s (%s)\n", st.Network, st.RPCURL)
	signer := st.Signer
	if signer == "" {
		signer = "not connected"
	}
	fmt.Fprintf(w, "signer:   %s\n", signer)
	fmt.Fprintf(w, "operator: %v\n", st.Operator)
	for _, p := range st.Problems {
		fmt.Fprintf(w, "! %s\n", p)
	}
}

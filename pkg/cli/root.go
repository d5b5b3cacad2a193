// Package cli implements the marketctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/params"
	"github.com/uhyunpark/objmarket/pkg/market"
	"github.com/uhyunpark/objmarket/pkg/util"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// OpenApp builds the market client for a command. Defaults to market.New.
	OpenApp func(ctx context.Context, cfg params.Config, log *zap.SugaredLogger) (*market.App, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for marketctl.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith builds the command tree around opts.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marketctl",
		Short: "Object marketplace client",
		Long: `Mint, list, buy and cancel items on an object-ledger marketplace.

Configuration is read from --config (YAML), then .env, then the
environment. Actions are signed with SIGNER_KEY.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	if opts.Format == "" {
		opts.Format = "text"
	}

	// Flag defaults come from opts so callers can preset them.
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "path to YAML config")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "log to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", opts.Format, "output format (json|text)")

	cmd.AddCommand(NewMintCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewBuyCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewListingsCommand(opts))
	cmd.AddCommand(NewItemsCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewKeygenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func (o *RootOptions) logger() *zap.SugaredLogger {
	if !o.Verbose {
		return util.Sugar(nil)
	}
	l, err := util.NewLogger()
	if err != nil {
		return util.Sugar(nil)
	}
	return l.Sugar()
}

// withApp loads configuration, opens the market client, runs fn and
// closes the client. Interrupts cancel the context passed to fn.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *market.App) error) error {
	cfg, err := params.LoadFile(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := o.OpenApp
	if open == nil {
		open = func(ctx context.Context, cfg params.Config, log *zap.SugaredLogger) (*market.App, error) {
			return market.New(ctx, cfg, market.WithLogger(log))
		}
	}
	log := o.logger()
	defer log.Sync()

	app, err := open(ctx, cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start client", err)
	}
	defer app.Close()
	return fn(ctx, app)
}

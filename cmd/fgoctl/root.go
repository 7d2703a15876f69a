package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/fgo/internal/config"
	"github.com/jacentio/fgo/internal/tracing"
	"github.com/jacentio/fgo/ledger"
	"github.com/jacentio/fgo/store"
)

var version = "dev"

// Client is the DynamoDB surface fgoctl uses.
type Client interface {
	store.API
	store.TableAdmin
}

// dialFunc opens a DynamoDB client for a network.
type dialFunc func(ctx context.Context, n config.Network) (Client, error)

func dialDynamoDB(ctx context.Context, n config.Network) (Client, error) {
	return n.DynamoDB(ctx)
}

// app is the state shared by every command of one invocation.
type app struct {
	dial dialFunc

	cfgFile string
	network string
	signer  int
	verbose bool

	cfg    config.Config
	out    io.Writer
	logger *slog.Logger
	tracer *tracing.Provider
	client Client
	store  *store.Store
}

func newRootCmd(dial dialFunc) *cobra.Command {
	a := &app{dial: dial}

	root := &cobra.Command{
		Use:   "fgoctl",
		Short: "Operate FGO parent and child template registries",
		Long: `fgoctl deploys and operates the FGO ChildTemplates and ParentTemplates
registries. Registry state lives in DynamoDB; every command loads the
registry it touches, runs one call and prints the emitted events.

Transferring or burning a parent template cascades onto its child
templates in the same transaction.`,
		Version:            version,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./fgo.yaml or ~/.config/fgo/fgo.yaml)")
	root.PersistentFlags().StringVarP(&a.network, "network", "n", "",
		"network to operate on (localhost, mumbai, polygon)")
	root.PersistentFlags().IntVarP(&a.signer, "signer", "s", 0,
		"index of the private key to sign with")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(
		newTablesCmd(a),
		newDeployCmd(a),
		newChildCmd(a),
		newParentCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.out = cmd.OutOrStdout()

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	v := viper.New()
	_ = v.BindPFlag("network", cmd.Root().PersistentFlags().Lookup("network"))
	cfg, err := config.Load(v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	network, err := cfg.ActiveNetwork()
	if err != nil {
		return err
	}
	sc, err := cfg.StoreConfig()
	if err != nil {
		return err
	}

	cfg.Tracing.Output = cmd.ErrOrStderr()
	a.tracer, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return err
	}

	a.client, err = a.dial(cmd.Context(), network)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Network, err)
	}
	a.store = store.New(a.client, sc, store.WithTracer(a.tracer.Tracer()))

	a.logger.Debug("configured",
		"network", cfg.Network,
		"endpoint", network.Endpoint,
		"config", v.ConfigFileUsed(),
	)
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	if a.tracer == nil {
		return nil
	}
	return a.tracer.Shutdown(context.WithoutCancel(cmd.Context()))
}

// caller returns the address of the selected signer.
func (a *app) caller() (ledger.Address, error) {
	signers, err := a.cfg.Signers()
	if err != nil {
		return ledger.Address{}, err
	}
	if a.signer < 0 || a.signer >= len(signers) {
		return ledger.Address{}, fmt.Errorf("signer %d out of range: %d keys configured", a.signer, len(signers))
	}
	return signers[a.signer].Address, nil
}

func (a *app) ledgerOptions() []ledger.Option {
	return []ledger.Option{ledger.WithLogger(a.logger)}
}

func (a *app) loadChild(ctx context.Context, address ledger.Address) (*ledger.ChildRegistry, error) {
	return a.store.LoadChild(ctx, address, a.ledgerOptions()...)
}

func (a *app) loadParent(ctx context.Context, address ledger.Address) (*ledger.ParentRegistry, error) {
	_, p, err := a.store.LoadRegistries(ctx, address, a.ledgerOptions()...)
	return p, err
}

func newTablesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Provision the registry tables",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create any missing table and enable TTL",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg := a.store.Config()
				if err := store.CreateTables(cmd.Context(), a.client, cfg); err != nil {
					return err
				}
				for _, name := range cfg.TableNames() {
					fmt.Fprintf(a.out, "table %s ready\n", name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Delete every table",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg := a.store.Config()
				if err := store.DeleteTables(cmd.Context(), a.client, cfg); err != nil {
					return err
				}
				for _, name := range cfg.TableNames() {
					fmt.Fprintf(a.out, "table %s deleted\n", name)
				}
				return nil
			},
		},
	)
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/fgo/ledger"
)

func newDeployCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a registry",
		Long: `Deploy a registry owned by the selected signer. Registry addresses are
derived from the signer and its deployment nonce, so deploying a child
registry and then a parent registry from a fresh account always yields the
same pair of addresses.`,
	}

	var name, symbol string
	child := &cobra.Command{
		Use:   "child",
		Short: "Deploy a ChildTemplates registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			caller, err := a.caller()
			if err != nil {
				return err
			}
			nonce, err := a.store.NextNonce(ctx, caller)
			if err != nil {
				return err
			}
			reg := ledger.NewChildRegistry(caller, ledger.ContractAddress(caller, nonce), name, symbol,
				a.ledgerOptions()...)
			if err := a.store.Persist(ctx, reg.Deployment()); err != nil {
				return fmt.Errorf("deploy child registry: %w", err)
			}
			a.logger.Info("deployed child registry", "address", reg.Address().Hex(), "nonce", nonce)
			fmt.Fprintf(a.out, "%s %s deployed at %s\n", reg.Name(), reg.Symbol(), reg.Address().Hex())
			return nil
		},
	}
	child.Flags().StringVar(&name, "name", ledger.DefaultChildName, "registry name")
	child.Flags().StringVar(&symbol, "symbol", ledger.DefaultChildSymbol, "registry symbol")

	var childAddr string
	parent := &cobra.Command{
		Use:   "parent",
		Short: "Deploy a ParentTemplates registry cascading into a child registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			caller, err := a.caller()
			if err != nil {
				return err
			}
			addr, err := ledger.ParseAddress(childAddr)
			if err != nil {
				return err
			}
			childReg, err := a.loadChild(ctx, addr)
			if err != nil {
				return fmt.Errorf("load child registry: %w", err)
			}
			nonce, err := a.store.NextNonce(ctx, caller)
			if err != nil {
				return err
			}
			reg := ledger.NewParentRegistry(caller, ledger.ContractAddress(caller, nonce), childReg,
				a.ledgerOptions()...)
			if err := a.store.Persist(ctx, reg.Deployment()); err != nil {
				return fmt.Errorf("deploy parent registry: %w", err)
			}
			a.logger.Info("deployed parent registry", "address", reg.Address().Hex(), "nonce", nonce)
			fmt.Fprintf(a.out, "%s %s deployed at %s\n", reg.Name(), reg.Symbol(), reg.Address().Hex())
			return nil
		},
	}
	parent.Flags().StringVar(&childAddr, "child", "", "address of the child registry")
	_ = parent.MarkFlagRequired("child")

	cmd.AddCommand(child, parent)
	return cmd
}

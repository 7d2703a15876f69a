package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/fgo/ledger"
)

func newChildCmd(a *app) *cobra.Command {
	var registry string
	cmd := &cobra.Command{
		Use:   "child",
		Short: "Operate a ChildTemplates registry",
	}
	cmd.PersistentFlags().StringVarP(&registry, "registry", "r", "", "address of the child registry")
	_ = cmd.MarkPersistentFlagRequired("registry")

	// load resolves the registry and the signing account.
	load := func(ctx context.Context) (*ledger.ChildRegistry, ledger.Address, error) {
		caller, err := a.caller()
		if err != nil {
			return nil, ledger.Address{}, err
		}
		addr, err := ledger.ParseAddress(registry)
		if err != nil {
			return nil, ledger.Address{}, err
		}
		reg, err := a.loadChild(ctx, addr)
		if err != nil {
			return nil, ledger.Address{}, fmt.Errorf("load child registry: %w", err)
		}
		return reg, caller, nil
	}

	cmd.AddCommand(
		newChildMintCmd(a, load),
		newChildMintBatchCmd(a, load),
		newChildApproveCmd(a, load),
		newChildTransferCmd(a, load),
		newChildBurnCmd(a, load),
		newChildShowCmd(a, load),
	)
	return cmd
}

type childLoader func(ctx context.Context) (*ledger.ChildRegistry, ledger.Address, error)

// recipient parses an optional address flag, defaulting to the caller.
func recipient(s string, caller ledger.Address) (ledger.Address, error) {
	if s == "" {
		return caller, nil
	}
	return ledger.ParseAddress(s)
}

func newChildMintCmd(a *app, load childLoader) *cobra.Command {
	var to, svgPath, name string
	var amount uint64
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a child template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			holder, err := recipient(to, caller)
			if err != nil {
				return err
			}
			svg, err := readSVG(svgPath)
			if err != nil {
				return err
			}
			rec, err := reg.Mint(cmd.Context(), caller, holder, amount, svg, name)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "holder of the minted units (default: signer)")
	cmd.Flags().Uint64Var(&amount, "amount", 1, "units to mint")
	cmd.Flags().StringVar(&svgPath, "svg", "", "path to the template SVG")
	cmd.Flags().StringVar(&name, "name", "", "template name")
	return cmd
}

func newChildMintBatchCmd(a *app, load childLoader) *cobra.Command {
	var to string
	var amounts []uint
	var svgPaths, names []string
	cmd := &cobra.Command{
		Use:   "mint-batch",
		Short: "Mint several child templates in one call",
		Long: `Mint one child template per --amount, --svg and --name triple. The flags
are repeated once per template and must be given the same number of times.`,
		Example: `  fgoctl child mint-batch -r 0x5FbDB2315678afecb367f032d93F642f64180aa3 \
    --amount 1 --svg left.svg --name leftArm \
    --amount 1 --svg right.svg --name rightArm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			holder, err := recipient(to, caller)
			if err != nil {
				return err
			}
			svgs := make([]string, len(svgPaths))
			for i, p := range svgPaths {
				if svgs[i], err = readSVG(p); err != nil {
					return err
				}
			}
			rec, err := reg.MintBatch(cmd.Context(), caller, holder, toUint64s(amounts), svgs, names)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "holder of the minted units (default: signer)")
	cmd.Flags().UintSliceVar(&amounts, "amount", nil, "units to mint, once per template")
	cmd.Flags().StringArrayVar(&svgPaths, "svg", nil, "path to a template SVG, once per template")
	cmd.Flags().StringArrayVar(&names, "name", nil, "template name, once per template")
	return cmd
}

func newChildApproveCmd(a *app, load childLoader) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "approve <operator>",
		Short: "Allow an operator to move all of the signer's child templates",
		Long: `Allow an operator to move all of the signer's child templates. A parent
registry must be approved before the signer's parent templates can be
transferred or burned.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			operator, err := ledger.ParseAddress(args[0])
			if err != nil {
				return err
			}
			rec, err := reg.SetApprovalForAll(cmd.Context(), caller, operator, !revoke)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "revoke instead of grant")
	return cmd
}

func newChildTransferCmd(a *app, load childLoader) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "transfer <to> <id> <amount>",
		Short: "Transfer units of a child template",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			holder, err := recipient(from, caller)
			if err != nil {
				return err
			}
			to, err := ledger.ParseAddress(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			rec, err := reg.SafeTransferFrom(cmd.Context(), caller, holder, to, id, amount, nil)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "current holder (default: signer)")
	return cmd
}

func newChildBurnCmd(a *app, load childLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "burn <id> <amount>",
		Short: "Burn units of a child template held by the signer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			rec, err := reg.Burn(cmd.Context(), caller, id, amount)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
}

func newChildShowCmd(a *app, load childLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a child template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t, err := reg.Template(id)
			if err != nil {
				return err
			}
			balance, err := reg.BalanceOf(caller, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "registry:  %s\n", reg.Address().Hex())
			fmt.Fprintf(a.out, "token id:  %d\n", t.TokenID)
			fmt.Fprintf(a.out, "name:      %s\n", t.Name)
			fmt.Fprintf(a.out, "amount:    %d\n", t.Amount)
			fmt.Fprintf(a.out, "owner:     %s\n", t.Owner.Hex())
			fmt.Fprintf(a.out, "burned:    %t\n", t.Burned())
			fmt.Fprintf(a.out, "balance:   %d (%s)\n", balance, caller.Hex())
			fmt.Fprintf(a.out, "token uri: %s\n", t.TokenURI)
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/fgo/ledger"
)

type parentLoader func(ctx context.Context) (*ledger.ParentRegistry, ledger.Address, error)

func newParentCmd(a *app) *cobra.Command {
	var registry string
	cmd := &cobra.Command{
		Use:   "parent",
		Short: "Operate a ParentTemplates registry",
		Long: `Operate a ParentTemplates registry. Transfers and burns also move or burn
the parent's child templates, so the parent registry must be approved as an
operator on the child registry first (see "fgoctl child approve").`,
	}
	cmd.PersistentFlags().StringVarP(&registry, "registry", "r", "", "address of the parent registry")
	_ = cmd.MarkPersistentFlagRequired("registry")

	load := func(ctx context.Context) (*ledger.ParentRegistry, ledger.Address, error) {
		caller, err := a.caller()
		if err != nil {
			return nil, ledger.Address{}, err
		}
		addr, err := ledger.ParseAddress(registry)
		if err != nil {
			return nil, ledger.Address{}, err
		}
		reg, err := a.loadParent(ctx, addr)
		if err != nil {
			return nil, ledger.Address{}, fmt.Errorf("load parent registry: %w", err)
		}
		return reg, caller, nil
	}

	cmd.AddCommand(
		newParentCreateCmd(a, load),
		newParentUpdateSVGCmd(a, load),
		newParentTransferCmd(a, load),
		newParentBurnCmd(a, load),
		newParentShowCmd(a, load),
	)
	return cmd
}

func newParentCreateCmd(a *app, load parentLoader) *cobra.Command {
	var svgPath, name string
	var children []uint
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a parent template from child templates the signer holds",
		Example: `  fgoctl parent create -r 0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512 --svg jacket.svg --child 1 --child 2 --name "long sleeve jacket"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			svg, err := readSVG(svgPath)
			if err != nil {
				return err
			}
			rec, err := reg.CreateTemplate(cmd.Context(), caller, svg, toUint64s(children), name)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&svgPath, "svg", "", "path to the template SVG")
	cmd.Flags().UintSliceVar(&children, "child", nil, "child template id, repeatable")
	cmd.Flags().StringVar(&name, "name", "", "template name")
	return cmd
}

func newParentUpdateSVGCmd(a *app, load parentLoader) *cobra.Command {
	var svgPath string
	cmd := &cobra.Command{
		Use:   "update-svg <id>",
		Short: "Replace the image of a parent template",
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
			svg, err := readSVG(svgPath)
			if err != nil {
				return err
			}
			rec, err := reg.UpdateSVG(cmd.Context(), caller, id, svg)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&svgPath, "svg", "", "path to the new SVG")
	return cmd
}

func newParentTransferCmd(a *app, load parentLoader) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "transfer <to> <id>",
		Short: "Transfer a parent template and its child templates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			owner, err := recipient(from, caller)
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
			rec, err := reg.SafeTransferFrom(cmd.Context(), caller, owner, to, id)
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "current owner (default: signer)")
	return cmd
}

func newParentBurnCmd(a *app, load parentLoader) *cobra.Command {
	var children, amounts []uint
	cmd := &cobra.Command{
		Use:   "burn <id>",
		Short: "Burn a parent template and its child templates",
		Long: `Burn a parent template and its child templates. Without --child every
child template of the parent is burned by one unit; otherwise --child and
--amount name the parent's children and the units to burn of each.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, caller, err := load(cmd.Context())
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rec, err := reg.BurnTemplate(cmd.Context(), caller, id, toUint64s(children), toUint64s(amounts))
			if err != nil {
				return err
			}
			printReceipt(a.out, rec)
			return nil
		},
	}
	cmd.Flags().UintSliceVar(&children, "child", nil, "child template id, repeatable")
	cmd.Flags().UintSliceVar(&amounts, "amount", nil, "units of each child to burn, repeatable")
	return cmd
}

func newParentShowCmd(a *app, load parentLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a parent template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := load(cmd.Context())
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
			fmt.Fprintf(a.out, "registry:  %s\n", reg.Address().Hex())
			fmt.Fprintf(a.out, "token id:  %d\n", t.TokenID)
			fmt.Fprintf(a.out, "name:      %s\n", t.Name)
			fmt.Fprintf(a.out, "owner:     %s\n", t.Owner.Hex())
			fmt.Fprintf(a.out, "burned:    %t\n", t.Burned())
			fmt.Fprintf(a.out, "children:  %s (%s)\n", joinUints(t.ChildTokenIDs), reg.ChildContract().Hex())
			fmt.Fprintf(a.out, "supply:    %d\n", reg.TotalSupply())
			fmt.Fprintf(a.out, "token uri: %s\n", t.TokenURI)
			return nil
		},
	}
}

package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/resource"
)

// NewInspectCommand creates the inspect command: dump a decoded resource.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "inspect <resource-file>",
		Short:         "Dump the decoded ability tree of a resource file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// inspectView is the JSON projection of a decoded ability tree.
type inspectView struct {
	AbilityID int32          `json:"abilityId"`
	Groups    []inspectGroup `json:"groups"`
}

type inspectGroup struct {
	ID         int32       `json:"id"`
	Operations []inspectOp `json:"operations"`
}

type inspectOp struct {
	TypeTag    int32         `json:"typeTag"`
	Properties []inspectProp `json:"properties"`
}

type inspectProp struct {
	TypeTag int32  `json:"typeTag"`
	Value   string `json:"value"`
}

func runInspect(opts *RootOptions, resourcePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	buf, err := os.ReadFile(resourcePath)
	if err != nil {
		formatter.Error(ErrCodeReadFailed, fmt.Sprintf("reading %s: %v", resourcePath, err), nil)
		return NewExitError(ExitCommandError, "resource unreadable")
	}

	tree, err := resource.BinaryCodec{}.Decode(buf)
	if err != nil {
		formatter.Error(ErrCodeDecodeFailed, err.Error(), nil)
		return NewExitError(ExitFailure, "undecodable resource")
	}

	if opts.Format == "json" {
		return formatter.Success(treeView(tree))
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "ability %d\n", tree.ID)
	for _, g := range tree.Groups {
		fmt.Fprintf(&out, "  group %d\n", g.ID)
		for _, op := range g.Operations {
			fmt.Fprintf(&out, "    operation %d\n", op.TypeTag)
			for _, p := range op.Properties {
				fmt.Fprintf(&out, "      property %d = %s\n", p.TypeTag, mod.ValueString(p.Value))
			}
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), out.String())
	return nil
}

func treeView(tree *resource.Ability) inspectView {
	view := inspectView{AbilityID: tree.ID, Groups: make([]inspectGroup, 0, len(tree.Groups))}
	for _, g := range tree.Groups {
		gv := inspectGroup{ID: g.ID, Operations: make([]inspectOp, 0, len(g.Operations))}
		for _, op := range g.Operations {
			ov := inspectOp{TypeTag: op.TypeTag, Properties: make([]inspectProp, 0, len(op.Properties))}
			for _, p := range op.Properties {
				ov.Properties = append(ov.Properties, inspectProp{TypeTag: p.TypeTag, Value: mod.ValueString(p.Value)})
			}
			gv.Operations = append(gv.Operations, ov)
		}
		view.Groups = append(view.Groups, gv)
	}
	return view
}

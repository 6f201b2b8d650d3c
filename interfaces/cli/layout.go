package cli

import (
	"fmt"

	"canvas-backend/domain/core/entities"
	domainservices "canvas-backend/domain/services"
	"canvas-backend/infrastructure/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func layoutCmd() *cobra.Command {
	var (
		children int
		file     string
	)

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print where a root and its children would be placed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if children < 1 {
				return fmt.Errorf("--children must be at least 1")
			}
			out := cmd.OutOrStdout()

			layoutCfg, err := config.LoadLayoutFile(file)
			if err != nil {
				return err
			}
			engine := domainservices.NewLayoutEngine(layoutCfg, zap.NewNop())

			rootPos := engine.ComputeChildPositions("", 1, nil)[0]
			root, err := entities.NewNode(entities.NewNodeID(), rootPos, entities.StateAnswered,
				entities.ResponsePayload{Query: "root"})
			if err != nil {
				return err
			}
			positions := engine.ComputeChildPositions(root.ID, children, []entities.Node{root})

			fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-6s", "root"), Subtle.Sprintf("(%.0f, %.0f)", rootPos.X, rootPos.Y))
			for i, p := range positions {
				fmt.Fprintf(out, "  %s  (%.0f, %.0f)\n", Info.Sprintf("%-6d", i), p.X, p.Y)
			}
			Subtle.Fprintf(out, "  %d per column, %.0fx%.0f nodes, %.0f padding\n",
				layoutCfg.MaxSiblings, layoutCfg.NodeWidth, layoutCfg.NodeHeight, layoutCfg.Padding)
			return nil
		},
	}

	cmd.Flags().IntVarP(&children, "children", "n", 3, "number of children to place")
	cmd.Flags().StringVarP(&file, "file", "f", "", "layout YAML file overriding the defaults")
	return cmd
}

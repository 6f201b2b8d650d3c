package cli

import (
	"fmt"

	domainservices "canvas-backend/domain/services"
	"canvas-backend/infrastructure/di"

	"github.com/spf13/cobra"
)

func listCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List stored canvases",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withContainer(cmd.Context(), opts, func(c *di.Container) error {
				canvases, err := c.Sessions.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(canvases) == 0 {
					Subtle.Fprintln(out, "  No canvases stored.")
					return nil
				}
				for _, cv := range canvases {
					fmt.Fprintf(out, "  %s  %-40s %s\n",
						Info.Sprint(cv.ID),
						cv.Title,
						Subtle.Sprintf("%d nodes, updated %s", cv.NodeCount, cv.UpdatedAt.Format("2006-01-02 15:04")),
					)
				}
				return nil
			})
		},
	}
}

func showCmd(opts *globalOptions) *cobra.Command {
	var showAnswers bool

	cmd := &cobra.Command{
		Use:   "show <canvasID>",
		Short: "Print a stored canvas as a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withContainer(cmd.Context(), opts, func(c *di.Container) error {
				s, err := c.Sessions.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				snap := s.Snapshot()
				fmt.Fprintf(out, "%s %s\n\n", Brand.Sprint(s.Title), Subtle.Sprint(s.ID))
				printTree(out, snap.Nodes, snap.Edges, showAnswers)

				stats := domainservices.NewCanvasAnalytics().Stats(snap.Nodes, snap.Edges)
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  %s  %d nodes, %d edges\n", Brand.Sprintf("%-8s", "Size"), stats.NodeCount, stats.EdgeCount)
				fmt.Fprintf(out, "  %s  %d levels, widest %d\n", Brand.Sprintf("%-8s", "Shape"), stats.MaxDepth, stats.MaxFanOut)
				fmt.Fprintf(out, "  %s  %d unanswered follow-ups\n", Brand.Sprintf("%-8s", "Pending"), stats.Pending)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&showAnswers, "answers", "a", false, "print answers under each node")
	return cmd
}

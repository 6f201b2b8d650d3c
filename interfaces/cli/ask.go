package cli

import (
	"fmt"
	"sync"

	"canvas-backend/application/services"
	"canvas-backend/infrastructure/di"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func askCmd(opts *globalOptions) *cobra.Command {
	var (
		depth       int
		parallel    int
		title       string
		save        bool
		showAnswers bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and expand its follow-ups level by level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if depth < 0 {
				return fmt.Errorf("--depth must not be negative")
			}
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1")
			}
			out := cmd.OutOrStdout()

			return withContainer(cmd.Context(), opts, func(c *di.Container) error {
				ctx := cmd.Context()
				if title == "" {
					title = args[0]
				}
				s := c.Sessions.Create(ctx, title)

				result, err := c.Orchestrator.Ask(ctx, s, args[0])
				if err != nil {
					return err
				}
				if result.Placeholder {
					Warn.Fprintln(out, "  The answer could not be generated; a placeholder was used.")
				}

				frontier := childIDs(result)
				for level := 1; level <= depth && len(frontier) > 0; level++ {
					frontier, err = answerLevel(cmd, c, s, frontier, parallel)
					if err != nil {
						return err
					}
				}

				snap := s.Snapshot()
				printTree(out, snap.Nodes, snap.Edges, showAnswers)
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  %s  %s\n", Brand.Sprintf("%-8s", "Canvas"), s.ID)
				fmt.Fprintf(out, "  %s  %d nodes, %d edges\n", Brand.Sprintf("%-8s", "Size"), len(snap.Nodes), len(snap.Edges))

				if save {
					if err := c.Sessions.Save(ctx, s); err != nil {
						return err
					}
					Subtle.Fprintf(out, "  Saved to %s storage\n", c.Config.Storage)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&depth, "depth", "d", 1, "follow-up levels to answer after the root")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "follow-ups answered concurrently")
	cmd.Flags().StringVar(&title, "title", "", "canvas title (defaults to the question)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the canvas")
	cmd.Flags().BoolVarP(&showAnswers, "answers", "a", false, "print answers under each node")
	return cmd
}

// answerLevel answers every follow-up in frontier concurrently and returns
// the follow-ups they produced
func answerLevel(cmd *cobra.Command, c *di.Container, s *services.Session, frontier []string, parallel int) ([]string, error) {
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(parallel)

	var (
		mu   sync.Mutex
		next []string
	)
	for _, id := range frontier {
		g.Go(func() error {
			result, err := c.Orchestrator.AnswerFollowUp(ctx, s, id)
			if err != nil {
				return fmt.Errorf("answer %s: %w", id, err)
			}
			mu.Lock()
			if result.Placeholder {
				Warn.Fprintf(cmd.OutOrStdout(), "  Follow-up %s used a placeholder answer\n", id)
			}
			next = append(next, childIDs(result)...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

func childIDs(result services.ExpansionResult) []string {
	ids := make([]string, 0, len(result.Children))
	for _, child := range result.Children {
		ids = append(ids, child.ID)
	}
	return ids
}

package commands

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyai-go/internal/logging"
	"github.com/54b3r/studyai-go/internal/rag"
	"github.com/54b3r/studyai-go/internal/retrieval"
)

// NewAskCmd constructs the `studyai ask` command, which answers one
// question from the ingested material.
func NewAskCmd() *cobra.Command {
	var session string
	var language string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the ingested study material",
		Long: `Answer a student question using only the ingested material.

Retrieval searches the given session first and falls back to every session
when nothing matches. If the session folder holds a teacher_review.json,
its guidance shapes the explanation.

Examples:
  studyai ask --session session-42 "What is photosynthesis?"
  studyai ask --language hindi "Explain Newton's third law"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			svc, err := newServices(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer svc.Close()

			assembler, err := svc.assembler(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			ans, err := assembler.Answer(ctx, retrieval.Request{
				Query:    strings.Join(args, " "),
				Session:  session,
				Language: language,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Response)
			if showSources && len(ans.Sources) > 0 {
				fmt.Fprintf(out, "\nSources (%s search):\n", ans.Stage)
				for _, d := range ans.Sources {
					fmt.Fprintf(out, "  - %s / %s (score %.3f)\n", d.Source, d.Metadata[rag.MetaTopic], d.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id to search first")
	cmd.Flags().StringVarP(&language, "language", "l", retrieval.LanguageEnglish, "Response language: english, hindi or telugu")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved sources after the answer")

	return cmd
}

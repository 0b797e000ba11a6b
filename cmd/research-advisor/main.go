package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mikeboe/research-advisor/pkg/app"
	"github.com/mikeboe/research-advisor/pkg/assistant"
	"github.com/mikeboe/research-advisor/pkg/config"
	"github.com/mikeboe/research-advisor/pkg/research"
)

var (
	query   string
	jsonOut bool
)

func main() {
	cfg := config.Load()
	// Logs go to stderr so reports can be piped.
	app.SetupLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "research-advisor",
		Short:        "A terminal-based research advisor",
		Long:         `research-advisor breaks a question into sub-queries, searches for each, then drafts a research plan and a summary of what it found.`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Research a question and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("query") {
				// Interactive Mode
				fmt.Print("Enter research question: ")
				input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				query = input
			}
			query = strings.TrimSpace(query)
			if query == "" {
				return fmt.Errorf("query cannot be empty")
			}

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			slog.Info("Starting research", "query", query)
			state, id, saveErr := a.Engine(slog.Default()).RunAndSave(ctx, query)
			if err := printState(cmd.OutOrStdout(), state, id); err != nil {
				return err
			}
			if saveErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: session was not saved: %v\n", saveErr)
			}
			return nil
		},
	}
	runCmd.Flags().StringVarP(&query, "query", "q", "", "The research question")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the final state as JSON")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect saved research sessions",
	}
	sessionsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved sessions, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := app.New(ctx, cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				infos, err := a.Sessions.List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tFAILED\tQUERY")
				for _, info := range infos {
					fmt.Fprintf(w, "%s\t%t\t%s\n", info.ID, info.Failed, info.OriginalQuery)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Print a saved session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := app.New(ctx, cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				rec, err := a.Sessions.Load(ctx, args[0])
				if err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), rec.ResearchState, rec.ID)
			},
		},
	)
	sessionsCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print sessions as JSON")

	feedbackCmd := &cobra.Command{
		Use:   "feedback",
		Short: "Work with user feedback",
	}
	feedbackCmd.AddCommand(&cobra.Command{
		Use:   "analyze",
		Short: "Summarize all recorded feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			analysis, err := a.Analyzer.Analyze(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		},
	})

	rootCmd.AddCommand(runCmd, sessionsCmd, feedbackCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func printState(w io.Writer, state research.ResearchState, id string) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			SessionID string                 `json:"session_id,omitempty"`
			State     research.ResearchState `json:"state"`
		}{id, state})
	}
	fmt.Fprintln(w, assistant.FormatReport(state))
	if id != "" {
		fmt.Fprintf(w, "\nSession: %s\n", id)
	}
	return nil
}

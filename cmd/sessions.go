package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/monitoring"
	"github.com/posterintel/poster-research/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect research session history",
	Long:  "Commands for listing, viewing, and summarizing research sessions.",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List research sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := st.ListSessions(ctx, store.SessionFilter{
			Status: model.SessionStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessionsList(os.Stdout, sessions)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show full details of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}
		if sess == nil {
			return eris.Errorf("session not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

// -- sessions stats --

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate session metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		hours, _ := cmd.Flags().GetInt("hours")

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "sessions stats")
		}

		formatMetrics(os.Stdout, snap)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().String("status", "", "filter by session status (running, complete, failed)")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsStatsCmd.Flags().Int("hours", 24, "lookback window in hours")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsStatsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSessionsList writes a tabular session listing to out.
func formatSessionsList(out io.Writer, sessions []model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tQUERY\tRESULTS\tCREDITS\tCOST\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-----\t-------\t-------\t----\t-------")

	for _, s := range sessions {
		results, credits, costUSD := "-", "-", "-"
		if s.Response != nil {
			results = strconv.Itoa(s.Response.Stats.ResultCount)
			credits = strconv.Itoa(s.Response.Stats.CreditsUsed)
			costUSD = fmt.Sprintf("$%.3f", s.Response.Stats.CostUSD)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(s.ID),
			s.Status,
			sessionLabel(s.Request),
			results,
			credits,
			costUSD,
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatMetrics writes an aggregate metrics snapshot to out.
func formatMetrics(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Sessions:\t%d\n", snap.SessionsTotal)
	_, _ = fmt.Fprintf(w, "  Complete:\t%d\n", snap.SessionsComplete)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", snap.SessionsFailed)
	_, _ = fmt.Fprintf(w, "  Running:\t%d\n", snap.SessionsRunning)
	_, _ = fmt.Fprintf(w, "Fail rate:\t%.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintf(w, "Credits used:\t%d\n", snap.CreditsUsed)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.3f\n", snap.CostUSD)
	if snap.AvgElapsedSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg elapsed:\t%.1fs\n", snap.AvgElapsedSecs)
	}
	if snap.AvgResultCount > 0 {
		_, _ = fmt.Fprintf(w, "Avg results:\t%.1f\n", snap.AvgResultCount)
	}
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", snap.LookbackHours)
	_ = w.Flush()
}

// sessionLabel picks a compact request description for list output.
func sessionLabel(req model.SearchRequest) string {
	label := req.ImageURL
	if len(req.Queries) > 0 {
		label = req.Queries[0]
	}
	if label == "" {
		label = "(empty)"
	}
	if len(label) > 40 {
		label = label[:37] + "..."
	}
	return label
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

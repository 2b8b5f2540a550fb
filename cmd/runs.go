package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vendmatch/leadgen-cli/internal/model"
	"github.com/vendmatch/leadgen-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Create and inspect lead-generation runs",
	Long:  "Commands for creating, listing, viewing, and stopping runs.",
}

// -- runs create --

var runsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Queue a new run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		input, err := runInputFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := validateRunInput(input); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.CreateRun(ctx, *input)
		if err != nil {
			return eris.Wrap(err, "runs create")
		}

		fmt.Fprintf(os.Stdout, "%s queued (%s, %s; %.0f mi; %d max; %d industries)\n",
			run.ID, run.City, run.State, run.RadiusMiles, run.MaxLeads, len(run.Industries))
		return nil
	},
}

// runInputFromFlags builds the run input from --file or individual flags.
func runInputFromFlags(cmd *cobra.Command) (*model.RunInput, error) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrap(err, "runs create: read file")
		}
		var input model.RunInput
		if err := yaml.Unmarshal(data, &input); err != nil {
			return nil, eris.Wrap(err, "runs create: parse file")
		}
		return &input, nil
	}

	city, _ := cmd.Flags().GetString("city")
	state, _ := cmd.Flags().GetString("state")
	radius, _ := cmd.Flags().GetFloat64("radius")
	maxLeads, _ := cmd.Flags().GetInt("max-leads")
	industries, _ := cmd.Flags().GetStringSlice("industries")

	return &model.RunInput{
		City:        city,
		State:       state,
		RadiusMiles: radius,
		MaxLeads:    maxLeads,
		Industries:  industries,
	}, nil
}

func validateRunInput(input *model.RunInput) error {
	switch {
	case strings.TrimSpace(input.City) == "":
		return eris.New("city is required")
	case strings.TrimSpace(input.State) == "":
		return eris.New("state is required")
	case input.RadiusMiles <= 0:
		return eris.New("radius must be positive")
	case input.MaxLeads <= 0:
		return eris.New("max leads must be positive")
	case len(input.Industries) == 0:
		return eris.New("at least one industry is required")
	}
	return nil
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
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

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
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

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stop --

var runsStopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a queued or running run",
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

		stopped, err := st.ForceFail(ctx, args[0], "Stopped by user")
		if err != nil {
			return eris.Wrap(err, "runs stop")
		}
		if !stopped {
			fmt.Fprintln(os.Stderr, "Run is already finished.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%s stopped\n", args[0])
		return nil
	},
}

// -- runs stop-all --

var runsStopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop every queued and running run",
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

		stopped := 0
		for _, status := range []model.RunStatus{model.RunStatusQueued, model.RunStatusRunning} {
			runs, err := st.ListRuns(ctx, store.RunFilter{Status: status, Limit: 10000})
			if err != nil {
				return eris.Wrap(err, "runs stop-all")
			}
			for _, run := range runs {
				ok, err := st.ForceFail(ctx, run.ID, "Stopped by user")
				if err != nil {
					return eris.Wrap(err, "runs stop-all")
				}
				if ok {
					stopped++
				}
			}
		}

		fmt.Fprintf(os.Stdout, "Stopped %d runs\n", stopped)
		return nil
	},
}

func init() {
	runsCreateCmd.Flags().String("file", "", "YAML file with run parameters")
	runsCreateCmd.Flags().String("city", "", "target city")
	runsCreateCmd.Flags().String("state", "", "target state (2-letter)")
	runsCreateCmd.Flags().Float64("radius", 25, "search radius in miles")
	runsCreateCmd.Flags().Int("max-leads", 100, "maximum leads across all industries")
	runsCreateCmd.Flags().StringSlice("industries", nil, "industries to search (comma-separated)")

	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, done, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsCreateCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStopCmd)
	runsCmd.AddCommand(runsStopAllCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLOCATION\tSTATUS\tLEADS\tMESSAGE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t-----\t-------\t-------")

	for _, r := range runs {
		location := fmt.Sprintf("%s, %s", r.City, r.State)
		message := r.Progress.Message
		if len(message) > 40 {
			message = message[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			location,
			r.Status,
			r.Progress.Total,
			message,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

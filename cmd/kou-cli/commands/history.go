package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 10, "How many runs to show.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Shows the most recent collection runs.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		store, db, err := openRunlog(cfg)
		if err != nil {
			fatal("failed to open run history", err)
		}
		defer db.Close()

		runs, err := store.History(cmd.Context(), cfg.Username, *historyLimit)
		if err != nil {
			fatal("failed to read run history", err)
		}
		if len(runs) == 0 {
			fmt.Println("no collection runs recorded for", cfg.Username)
			return
		}

		t := newTable()
		t.AppendHeader(table.Row{"When", "Semesters", "Courses"})
		for _, run := range runs {
			t.AppendRow(table.Row{humanize.Time(run.Time), run.Semesters, run.Courses})
		}
		t.Render()
	},
}

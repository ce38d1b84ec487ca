package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspects the local grade cache.",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Prints metadata about the cached grades without dumping them.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		info, found := openCache(cfg).Info(cfg.Username)
		if !found {
			fmt.Println("no cached grades for", cfg.Username)
			return
		}

		t := newTable()
		t.AppendRow(table.Row{"File size", humanize.Bytes(uint64(info.FileSize))})
		t.AppendRow(table.Row{"Modified", humanize.Time(info.LastModified)})
		if info.Metadata != nil {
			updated := time.Unix(int64(info.Metadata.LastUpdated), 0)
			t.AppendRow(table.Row{"Username", info.Metadata.Username})
			t.AppendRow(table.Row{"Last updated", humanize.Time(updated)})
			t.AppendRow(table.Row{"Version", info.Metadata.Version})
			t.AppendRow(table.Row{"Semesters", info.Metadata.TotalSemesters})
			t.AppendRow(table.Row{"Courses", info.Metadata.TotalCourses})
		}
		t.Render()
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the cached grades, one table per semester.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		aggregate, found := openCache(cfg).Load(cfg.Username)
		if !found {
			fmt.Println("no cached grades for", cfg.Username)
			return
		}

		keys := make([]string, 0, len(aggregate))
		for key := range aggregate {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			semester := aggregate[key]
			fmt.Println()
			fmt.Println(semester.SemesterName)

			t := newTable()
			t.AppendHeader(table.Row{"Code", "Course", "Instructor", "YIO", "YYS", "BUT", "BN", "BD"})
			for _, course := range semester.Courses {
				t.AppendRow(table.Row{
					course.Code, course.Name, course.Instructor,
					course.Yio, course.Yys, course.But, course.Bn, course.Bd,
				})
			}
			t.Render()
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Deletes the cached grades for the configured user.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}
		err = openCache(cfg).Clear(cfg.Username)
		if err != nil {
			fatal("failed to clear cache", err)
		}
		fmt.Println("cache cleared for", cfg.Username)
	},
}

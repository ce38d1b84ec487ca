package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"koubs-backend/lib/browser"
	"koubs-backend/lib/platforms/koubs"
	"koubs-backend/lib/runlog"
	"koubs-backend/lib/sessionstore"
	"koubs-backend/lib/timezone"
)

var collectHeadless *bool

func init() {
	collectHeadless = collectCmd.Flags().Bool(
		"headless", false,
		"Run the browser headless. Only works with a valid saved session.",
	)
	rootCmd.AddCommand(collectCmd)
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Logs into KOUBS and collects every semester's grades into the cache.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if cmd.Flags().Changed("headless") {
			cfg.Headless = *collectHeadless
		}

		sessions := openSessions(cfg)
		err = checkHeadless(cfg, sessions)
		if err != nil {
			return err
		}

		err = koubs.Preflight(cmd.Context(), time.Second*10)
		if err != nil {
			return fmt.Errorf("portal is unreachable: %w", err)
		}

		drv, err := browser.NewChrome(cmd.Context(), browser.ChromeOptions{
			Headless: cfg.Headless,
		})
		if err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		return collectWithDriver(cmd.Context(), cfg, sessions, drv)
	},
}

// checkHeadless fails fast when an interactive CAPTCHA login would be
// needed but no browser window will be shown.
func checkHeadless(cfg Config, sessions sessionstore.Store) error {
	if cfg.Headless && !sessions.HasValidSession(cfg.Username) {
		return errors.New("headless mode needs a valid saved session, run once without --headless to log in")
	}
	return nil
}

// collectWithDriver owns the driver and releases it on every return
// path, success or failure.
func collectWithDriver(ctx context.Context, cfg Config, sessions sessionstore.Store, drv browser.Driver) error {
	defer drv.Quit()

	auth := koubs.NewAuthenticator(drv, sessions)
	auth.Prompt = func(attempt int) {
		fmt.Printf(
			"\n[attempt %d] solve the CAPTCHA in the browser window and press the login button.\n",
			attempt,
		)
	}

	slog.Info("logging in", "username", cfg.Username)
	err := auth.Login(ctx, koubs.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	collector := koubs.NewCollector(drv)
	collector.Progress = func(semester koubs.Semester, index, total int) {
		slog.Info("collecting semester",
			"name", semester.Name, "index", index+1, "total", total)
	}

	t1 := time.Now()
	aggregate, err := collector.CollectAll(ctx)
	t2 := time.Now()
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	slog.Info("collection time",
		"seconds", t2.Sub(t1).Seconds(),
		"semesters", len(aggregate),
		"courses", aggregate.TotalCourses())

	err = openCache(cfg).Save(cfg.Username, aggregate)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	slog.Info("cache written",
		"path", filepath.Join(cfg.DataDir, "cache"))

	recordRun(cfg, aggregate)
	return nil
}

// recordRun appends to the run history. Advisory data, a failure here
// never fails the collection.
func recordRun(cfg Config, aggregate koubs.Aggregate) {
	store, db, err := openRunlog(cfg)
	if err != nil {
		slog.Warn("failed to open run history", "err", err)
		return
	}
	defer db.Close()

	err = store.Record(context.Background(), cfg.Username, runlog.Run{
		Time:      timezone.Now(),
		Semesters: len(aggregate),
		Courses:   aggregate.TotalCourses(),
	})
	if err != nil {
		slog.Warn("failed to record run", "err", err)
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	sessionCmd.AddCommand(sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manages the saved portal session.",
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Deletes the saved session, forcing an interactive login next time.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}
		err = openSessions(cfg).Clear(cfg.Username)
		if err != nil {
			fatal("failed to clear session", err)
		}
		fmt.Println("session cleared for", cfg.Username)
	},
}

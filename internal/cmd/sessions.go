package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roomshare/browserd/internal/util"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active browser sessions",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	client := newDaemonClient(daemonAddr(cmd))

	sessions, err := client.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  room=%s  slot=%d  status=%s\n", s.ID, s.RoomID, s.SlotIndex, s.Status)
		fmt.Printf("    allocated: %s\n", s.AllocatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("    expires:   %s\n", s.ExpiresAt.Format("2006-01-02 15:04:05"))
		if s.LastURL != "" {
			fmt.Printf("    url:       %s\n", util.TruncateString(s.LastURL, 96))
		}
		fmt.Println()
	}
	return nil
}

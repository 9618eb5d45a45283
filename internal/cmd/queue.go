package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roomshare/browserd/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the admission queue",
	RunE:  runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	client := newDaemonClient(daemonAddr(cmd))

	entries, err := client.Queue()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	for i, e := range entries {
		fmt.Printf("%d. %s  state=%s  enqueued=%s", i+1, e.RoomID, e.State, e.EnqueuedAt.Format("15:04:05"))
		if e.State == queue.StateNotified && e.Deadline != nil {
			fmt.Printf("  offer-deadline=%s", e.Deadline.Format("15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

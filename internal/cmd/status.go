package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool and queue status",
	Long:  `Display the daemon's slot pool capacity, active sessions, and queue depth.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "continuously refresh in a full-screen view")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newDaemonClient(daemonAddr(cmd))

	if statusWatch {
		return runWatch(client)
	}

	st, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Slots: %d total, %d available, %d allocated", st.Pool.Total, st.Pool.Available, st.Pool.Allocated)
	if st.Pool.Unhealthy > 0 {
		fmt.Printf(", %d unhealthy", st.Pool.Unhealthy)
	}
	fmt.Println()
	fmt.Printf("Sessions: %d active\n", st.Sessions)
	fmt.Printf("Queue: %d waiting or notified\n", st.QueueLength)
	fmt.Printf("Subscribers: %d\n", st.Subscribers)
	return nil
}

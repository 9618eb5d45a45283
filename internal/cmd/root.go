package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roomshare/browserd/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "browserd",
	Short: "Remote browser slot arbitration daemon",
	Long: `Browserd arbitrates access to a small fixed pool of container-backed
remote browser slots shared across many rooms: a bounded slot pool, a
fair FIFO admission queue with time-boxed offers, per-room cooldowns,
and autonomous reclamation of expired or orphaned sessions.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/browserd/config.yaml)")
	rootCmd.PersistentFlags().String("addr", "http://localhost:8944", "address of a running browserd daemon (client commands)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if err := config.Init(viper.GetString("config")); err != nil {
		cobra.CheckErr(err)
	}
}

// daemonAddr returns the --addr flag value for client commands.
func daemonAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("addr")
	return addr
}

package main

import (
	"fmt"
	"os"

	"karaoke-backend/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "karaoke",
	Short: "Line-by-line karaoke practice",
	Long: `karaoke plays a song one lyric line at a time, records your take
after each line and lets you review it before moving on.

Run 'karaoke practice <audio-file>' for the terminal UI, or 'karaoke serve'
to drive practice from a presentation client over the local socket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			cfgFile = config.GetConfigPath()
		}
		cfg = config.LoadFrom(cfgFile)
		if verbose {
			cfg.App.LogLevel = "debug"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/karaoke/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(lyricsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

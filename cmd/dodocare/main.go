// Command dodocare runs the DodoCare patient portal backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dodocare",
	Short: "DodoCare patient portal backend",
	Long: `DodoCare serves the patient portal API: sessions, appointments,
patient profiles and the doctor directory.

Configuration is read from the file given by --config and then from
DODOCARE_* environment variables, which take precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DODOCARE_CONFIG"), "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

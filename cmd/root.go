package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/overengineeringstudio/fsema/cmd/sem"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "fsema",
		Short: "filesystem-backed semaphore",
		Long: fmt.Sprintf(`fsema (v%s)

A counting semaphore for coordinating processes on a single host,
backed by nothing but lock files in a shared directory - no daemon,
no network service.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of fsema",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fsema v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(sem.SemCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	output  = os.Stdout
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pdbinfo",
	Short: "Inspect PE/CLI images and Portable PDB symbol stores",
	Long: `pdbinfo inspects managed PE images and Portable PDB files: metadata
streams, debug directories, symbol identity and per-method debug records.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "dump parsed structures")
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(methodsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

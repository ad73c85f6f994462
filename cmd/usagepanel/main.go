// Command usagepanel stores AI provider credentials encrypted at rest and
// serves normalized usage, billing and rate-limit data for them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "usagepanel",
	Short: "usagepanel aggregates AI provider usage",
	Long: "usagepanel keeps OpenAI, Anthropic and Google Gemini credentials in an encrypted vault " +
		"and reports their usage, cost and rate limits through one normalized model.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

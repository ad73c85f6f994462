package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

var usageCmd = &cobra.Command{
	Use:   "usage <provider>",
	Short: "Print the usage snapshot of a connected provider as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsage,
}

var (
	usageDays    int
	usageRefresh bool
)

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().IntVar(&usageDays, "days", model.DefaultWindowDays, "window length in days")
	usageCmd.Flags().BoolVar(&usageRefresh, "refresh", false, "bypass the cached snapshot")
}

func runUsage(cmd *cobra.Command, args []string) error {
	provider, err := model.ParseProviderID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	entry, err := a.cache.Get(cmd.Context(), provider, usageDays, usageRefresh)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entry.Report.Body())
}

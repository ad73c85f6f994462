package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/usagepanel/internal/application"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage stored provider credentials",
	Long: `Manage the encrypted provider credentials.

Keys are validated against the provider before they are stored.

Examples:
  usagepanel tokens list
  usagepanel tokens add openai --api-key=sk-...
  usagepanel tokens add anthropic --api-key=sk-ant-... --admin-key=sk-ant-admin... --session-key=sk-ant-sid01-...
  usagepanel tokens add gemini --api-key=AIza... --tier=paid
  usagepanel tokens remove gemini`,
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected providers",
	Args:  cobra.NoArgs,
	RunE:  runTokensList,
}

var tokensAddCmd = &cobra.Command{
	Use:   "add <provider>",
	Short: "Validate and store a provider credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokensAdd,
}

var tokensRemoveCmd = &cobra.Command{
	Use:   "remove <provider>",
	Short: "Remove a provider credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokensRemove,
}

var (
	tokenAPIKey     string
	tokenAdminKey   string
	tokenSessionKey string
	tokenTier       string
)

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.AddCommand(tokensListCmd)
	tokensCmd.AddCommand(tokensAddCmd)
	tokensCmd.AddCommand(tokensRemoveCmd)

	tokensAddCmd.Flags().StringVar(&tokenAPIKey, "api-key", "", "provider API key (required)")
	tokensAddCmd.Flags().StringVar(&tokenAdminKey, "admin-key", "", "Anthropic admin key for cost reports")
	tokensAddCmd.Flags().StringVar(&tokenSessionKey, "session-key", "", "claude.ai session key for plan usage")
	tokensAddCmd.Flags().StringVar(&tokenTier, "tier", string(model.TierFree), "Gemini billing tier (free|paid)")
	_ = tokensAddCmd.MarkFlagRequired("api-key")
}

func runTokensList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	providers := a.creds.List(cmd.Context())
	out := cmd.OutOrStdout()
	if len(providers) == 0 {
		fmt.Fprintln(out, "No providers connected.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Connect one with: usagepanel tokens add <provider> --api-key=<key>")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tKEY\tADMIN\tSESSION\tUPDATED")
	fmt.Fprintln(w, "--------\t---\t-----\t-------\t-------")
	for _, p := range providers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Provider.DisplayName(),
			p.KeyHint,
			flag(p.HasAdminKey),
			flag(p.HasSessionKey),
			p.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runTokensAdd(cmd *cobra.Command, args []string) error {
	provider, err := model.ParseProviderID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.creds.Connect(cmd.Context(), application.ConnectRequest{
		Provider:   provider,
		APIKey:     tokenAPIKey,
		AdminKey:   tokenAdminKey,
		SessionKey: tokenSessionKey,
		Tier:       model.ParseTier(tokenTier),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected %s (%s)\n", provider.DisplayName(), application.MaskKey(tokenAPIKey))
	if res.SessionKeyValid != nil && !*res.SessionKeyValid {
		fmt.Fprintln(out, "Session key was rejected and not stored; plan usage will be unavailable.")
	}
	return nil
}

func runTokensRemove(cmd *cobra.Command, args []string) error {
	provider, err := model.ParseProviderID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.creds.Disconnect(cmd.Context(), provider); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", provider.DisplayName())
	return nil
}

func flag(b *bool) string {
	switch {
	case b == nil:
		return "-"
	case *b:
		return "yes"
	default:
		return "no"
	}
}

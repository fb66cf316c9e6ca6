package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewKeysCmd constructs the `adab keys` command group for API key management.
func NewKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the chat gateway",
		Long: `Create, list, and revoke sk_ API keys.

Keys live in the local SQLite keystore (~/.adab/adab.db, override with
ADAB_DB). Each key is bound to a persona and carries an hourly request
budget. The full secret is printed exactly once, at creation.`,
	}

	cmd.AddCommand(newKeysCreateCmd(), newKeysListCmd(), newKeysRevokeCmd())
	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var account string
	var name string
	var personaID string
	var rateLimit int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new sk_ API key bound to a persona.

The secret is printed once and never stored in recoverable form elsewhere;
listings show only a redacted prefix and suffix.

Examples:
  adab keys create --account acme --name staging --persona gentle-coach
  adab keys create --account acme --name prod --persona gentle-coach --rate-limit 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeystore()
			if err != nil {
				return fmt.Errorf("keys create: %w", err)
			}
			defer store.Close()

			cred, err := store.CreateKey(cmd.Context(), account, name, personaID, rateLimit)
			if err != nil {
				return fmt.Errorf("keys create: %w", err)
			}

			fmt.Printf("Created key %s for account %q\n", cred.ID, cred.Account)
			fmt.Printf("Persona:    %s\n", cred.PersonaID)
			fmt.Printf("Rate limit: %d requests/hour\n", cred.RateLimit)
			fmt.Printf("\n  %s\n\n", cred.Key)
			fmt.Println("Store this secret now. It will not be shown again.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Owning account (required)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Operator label for the key (required)")
	cmd.Flags().StringVar(&personaID, "persona", "", "Persona the key responds as (required)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per hour (default 100)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("persona")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeystore()
			if err != nil {
				return fmt.Errorf("keys list: %w", err)
			}
			defer store.Close()

			creds, err := store.ListKeys(cmd.Context(), account)
			if err != nil {
				return fmt.Errorf("keys list: %w", err)
			}
			if len(creds) == 0 {
				fmt.Printf("No keys for account %q\n", account)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKEY\tNAME\tPERSONA\tACTIVE\tUSED\tLIMIT\tLAST USED")
			for _, c := range creds {
				lastUsed := "never"
				if !c.LastUsed.IsZero() {
					lastUsed = c.LastUsed.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%d\t%s\n",
					c.ID, c.Key, c.Name, c.PersonaID, c.Active, c.UsageCount, c.RateLimit, lastUsed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Owning account (required)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newKeysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long: `Revoke an API key by ID. Revocation is a soft delete: the key stops
authenticating immediately but its usage history is retained.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeystore()
			if err != nil {
				return fmt.Errorf("keys revoke: %w", err)
			}
			defer store.Close()

			if err := store.RevokeKey(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("keys revoke: %w", err)
			}
			fmt.Printf("Revoked key %s\n", args[0])
			return nil
		},
	}
}

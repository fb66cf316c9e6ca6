package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adab-ai/adab-go/internal/keystore"
)

// NewPersonaCmd constructs the `adab persona` command group for managing
// the coaching personas API keys are bound to.
func NewPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage coaching personas",
		Long: `Create, update, and inspect coaching personas.

A persona is the identity a key responds as: a display name plus the base
system prompt the model receives before any retrieved context.`,
	}

	cmd.AddCommand(newPersonaSetCmd(), newPersonaShowCmd())
	return cmd
}

func newPersonaSetCmd() *cobra.Command {
	var name string
	var prompt string
	var promptFile string
	var inactive bool

	cmd := &cobra.Command{
		Use:   "set <persona-id>",
		Short: "Create or update a persona",
		Long: `Create or update a persona by ID.

The system prompt is given inline with --prompt or read from a file with
--prompt-file. Exactly one of the two is required.

Examples:
  adab persona set gentle-coach --name "Gentle Coach" --prompt-file prompts/gentle.txt
  adab persona set default --name "Adab" --prompt "You are a warm, practical parenting coach."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (prompt == "") == (promptFile == "") {
				return fmt.Errorf("persona set: exactly one of --prompt or --prompt-file is required")
			}
			if promptFile != "" {
				data, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("persona set: read %s: %w", promptFile, err)
				}
				prompt = strings.TrimSpace(string(data))
			}

			store, err := openKeystore()
			if err != nil {
				return fmt.Errorf("persona set: %w", err)
			}
			defer store.Close()

			p := &keystore.Persona{
				ID:           args[0],
				Name:         name,
				SystemPrompt: prompt,
				Active:       !inactive,
			}
			if p.Name == "" {
				p.Name = p.ID
			}
			if err := store.UpsertPersona(cmd.Context(), p); err != nil {
				return fmt.Errorf("persona set: %w", err)
			}

			fmt.Printf("Persona %q saved (active: %t)\n", p.ID, p.Active)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (default: the persona ID)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Inline system prompt text")
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "File containing the system prompt")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Save the persona as inactive")

	return cmd
}

func newPersonaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <persona-id>",
		Short: "Print a persona's name and system prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeystore()
			if err != nil {
				return fmt.Errorf("persona show: %w", err)
			}
			defer store.Close()

			p, err := store.Persona(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("persona show: %w", err)
			}

			fmt.Printf("ID:     %s\nName:   %s\nActive: %t\n\n%s\n", p.ID, p.Name, p.Active, p.SystemPrompt)
			return nil
		},
	}
}

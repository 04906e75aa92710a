package cli

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pulsequiz/internal/ai"
	"pulsequiz/internal/config"
)

// NewDraftCmd builds the CLI subcommand that drafts a question batch on the
// command line, for hosts who prepare material before opening a session.
func NewDraftCmd(configPath *string) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "draft [topic]",
		Short: "Draft a question batch for a topic and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.AI.APIKey == "" {
				return errors.New("AI_API_KEY is not configured")
			}
			gen := ai.NewClient(ai.Config{
				BaseURL: cfg.AI.BaseURL,
				APIKey:  cfg.AI.APIKey,
				Model:   cfg.AI.Model,
				Timeout: config.TTLDuration(cfg.AI.Timeout, 30*time.Second),
			})
			questions, err := ai.DraftQuestions(cmd.Context(), gen, args[0], count)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"questions": questions})
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, "number of questions to draft")
	return cmd
}

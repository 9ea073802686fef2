package main

import (
	"github.com/spf13/cobra"

	"github.com/bau-research/appscore/internal/config"
	"github.com/bau-research/appscore/internal/scopus"
)

func init() {
	rootCmd.AddCommand(authorCmd)
}

var authorCmd = &cobra.Command{
	Use:   "author <author-id>",
	Short: "Resolve an author and list their publication EIDs",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthor,
}

// AuthorResponse is the response for the author command.
type AuthorResponse struct {
	ID    string   `json:"author_id"`
	Name  string   `json:"author_name"`
	Count int      `json:"count"`
	EIDs  []string `json:"eids"`
}

func runAuthor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	client := newClient(cfg)

	authorID := args[0]
	name, err := client.ResolveAuthor(cmd.Context(), authorID)
	if err != nil {
		if scopus.IsAuthError(err) {
			exitWithError(ExitConfigError, "resolving author: %v", err)
		}
		exitWithError(ExitError, "resolving author: %v", err)
	}

	eids, err := client.ListPublicationIDs(cmd.Context(), authorID)
	if err != nil {
		exitWithError(ExitError, "listing publications: %v", err)
	}

	resp := AuthorResponse{ID: authorID, Name: name, Count: len(eids), EIDs: eids}
	if humanOutput {
		outputHuman("%s (%s): %d publications\n", resp.Name, resp.ID, resp.Count)
		for _, eid := range resp.EIDs {
			outputHuman("  %s\n", eid)
		}
		return nil
	}
	return outputJSON(resp)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/bidibip/internal/store"
	"github.com/rahul/bidibip/internal/wizard"
	"github.com/rahul/bidibip/pkg/config"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Show the routing tokens persisted by each module",
	RunE:  runTokens,
}

// moduleTokens decodes only the allocator of a module's stored state.
type moduleTokens struct {
	Tokens *wizard.Allocator `json:"tokens"`
}

func runTokens(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	docs, err := store.NewDocumentStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer docs.Close()

	ctx := cmd.Context()
	keys, err := docs.Keys(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, key := range keys {
		state := moduleTokens{Tokens: wizard.NewAllocator()}
		if _, err := docs.Load(ctx, key, &state); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d in use %v\n", key, state.Tokens.Len(), state.Tokens.Tokens())
	}
	return nil
}

package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/output"
	"github.com/blackwell-systems/capwatch/internal/store"
)

var (
	listAvailable bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List watched capabilities",
		Long: `List the capabilities mirrored in the database by the last watch session,
with their state names and how many apps are using each one.

With --available, list the capability names present in the consent store
instead. Any of them can be passed to 'watch' or 'sample'.`,
		Example: `  capwatch list
  capwatch list --available`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().BoolVar(&listAvailable, "available", false, "list capabilities present in the consent store")

	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if listAvailable {
		names, err := systemPlatform().reader().Capabilities()
		if err != nil {
			return fmt.Errorf("failed to list capabilities: %w", err)
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	resolvedDBPath, err := getDBPath(cfg)
	if err != nil {
		return fmt.Errorf("failed to get database path: %w", err)
	}

	db, err := store.New(resolvedDBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	infos, err := db.ListCapabilities()
	if errors.Is(err, store.ErrNotInitialized) {
		fmt.Fprintln(out, "No watch session has run yet. Start one with 'capwatch watch'.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list capabilities: %w", err)
	}

	records, err := db.InUse()
	if err != nil {
		return fmt.Errorf("failed to read live usage: %w", err)
	}
	fmt.Fprint(out, output.RenderCapabilityTable(infos, countByCapability(records)))
	return nil
}

// countByCapability maps capability names to their number of records.
func countByCapability(records []consent.UsageRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Capability]++
	}
	return counts
}

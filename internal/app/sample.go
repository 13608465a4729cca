package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/output"
)

var (
	sampleJSON  bool
	sampleInUse bool

	sampleCmd = &cobra.Command{
		Use:   "sample [capability...]",
		Short: "Show which apps have used a capability",
		Long: `Read the consent store once and list every app recorded for each
capability, with whether it is using the capability right now and when it
last stopped.

Capabilities default to the list in the config file.`,
		Example: `  # Every app that has used the webcam
  capwatch sample webcam

  # Apps using any configured capability right now
  capwatch sample --in-use

  # Machine-readable
  capwatch sample microphone --json`,
		RunE: runSample,
	}
)

func init() {
	sampleCmd.Flags().BoolVar(&sampleJSON, "json", false, "print records as JSON")
	sampleCmd.Flags().BoolVar(&sampleInUse, "in-use", false, "only show apps currently using the capability")

	RootCmd.AddCommand(sampleCmd)
}

func runSample(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reader := systemPlatform().reader()
	out := cmd.OutOrStdout()

	all := consent.Snapshot{}
	for i, name := range capabilityArgs(cfg, args) {
		snap, err := reader.Sample(name)
		if err != nil {
			return err
		}
		if sampleInUse {
			snap = snap.InUse()
		}

		if sampleJSON {
			all = append(all, snap...)
			continue
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprint(out, output.RenderUsageTable(name, snap))
	}

	if sampleJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/metadolphin/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a default configuration file",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	fmt.Printf("\n%s metadolphin is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Set catalog.baseUrl and catalog.apiToken in %s\n", cfgPath)
	fmt.Println("     (or export ALATION_BASE_URL and ALATION_API_TOKEN)")
	fmt.Println("  2. Check access: metadolphin status")
	fmt.Println("  3. Ask: metadolphin ask -m \"Which tables hold customer orders?\"")
	fmt.Println("  4. For Slack, set slack.enabled, SLACK_BOT_TOKEN and SLACK_APP_TOKEN, then run: metadolphin gateway")
	return nil
}

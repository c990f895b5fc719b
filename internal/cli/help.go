package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds usage guides to the root command.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExamplesCmd(app))
	rootCmd.AddCommand(newQuickstartCmd(app))
}

func newExamplesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Weekly Run",
					commands: []string{
						"memwatch monitor                  # Fetch, record and email the report",
						"memwatch monitor --no-email -v    # Print the report and every product",
						"memwatch monitor --json           # Change-set as JSON",
					},
				},
				{
					title: "Inspect History",
					commands: []string{
						"memwatch history --limit 5        # Latest snapshots",
						"memwatch trend \"DDR5 UDIMM 16GB 5600\" --days 14",
					},
				},
				{
					title: "Scheduling (Tuesdays after the 11:00 GMT+8 update)",
					commands: []string{
						"30 11 * * 2 memwatch monitor      # crontab entry",
					},
				},
				{
					title: "Configuration",
					commands: []string{
						"memwatch config path              # Config directory",
						"memwatch config show              # Effective settings, secrets masked",
						"memwatch config validate          # Check config.toml",
					},
				},
			}

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}

			return nil
		},
	}
}

func newQuickstartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		Long:  "Step-by-step guide for setting up the price monitor.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("memwatch - Quick Start Guide")
			output.Println()

			steps := []struct {
				title string
				desc  string
				cmd   string
			}{
				{
					title: "Configure SMTP",
					desc:  "Set SMTP_EMAIL, SMTP_PASSWORD and RECIPIENT_EMAIL in the environment or a .env file.",
					cmd:   "memwatch config path  # .env and config.toml live here",
				},
				{
					title: "Dry Run",
					desc:  "Fetch prices and print the report without sending mail.",
					cmd:   "memwatch monitor --no-email -v",
				},
				{
					title: "Send a Report",
					desc:  "Deliver the report to every enabled channel.",
					cmd:   "memwatch monitor",
				},
				{
					title: "Schedule",
					desc:  "Run weekly after the market update.",
					cmd:   "30 11 * * 2 memwatch monitor",
				},
			}

			for i, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan("→"), i+1, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Configuration Files")
			output.Println()
			output.Printf("  %s - source pages, storage backend, notification channels\n", output.Cyan("config.toml"))
			output.Printf("  %s - SMTP credentials\n", output.Cyan(".env"))
			output.Println()

			output.Bold("Important Notes")
			output.Println()
			output.Printf("  %s Only one run may update the history at a time\n", output.Yellow("⚠"))
			output.Printf("  %s Without network access the cached price list is reported\n", output.Yellow("⚠"))
			output.Printf("  %s Keep the SMTP password out of config.toml\n", output.Yellow("⚠"))

			return nil
		},
	}
}

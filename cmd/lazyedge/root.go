package lazyedge

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/icarus-itcs/lazyedge/internal/notify"
	"github.com/icarus-itcs/lazyedge/internal/preflight"
	"github.com/icarus-itcs/lazyedge/internal/ui"
)

var (
	appVersion string
	appCommit  string
	appDate    string
	configPath string
	demoMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "lazyedge",
	Short: "A terminal dashboard for your IoT edge devices",
	Long: `lazyedge is a terminal UI for remote-access IoT devices.
See every bookmarked device, whether it is online and whether you are
paired with it, pair over the local network and discover new devices.

Run 'lazyedge --demo' to try it against a simulated fleet.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lazyedge %s\n", appVersion)
		fmt.Printf("  commit: %s\n", appCommit)
		fmt.Printf("  built:  %s\n", appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(bookmarkCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(mcpCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ~/.config/lazyedge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "use an in-memory fleet of simulated devices")
}

func Execute(version, commit, date string) error {
	appVersion = version
	appCommit = commit
	appDate = date
	return rootCmd.ExecuteContext(context.Background())
}

func runApp(ctx context.Context) error {
	a, err := newApp(ctx, demoMode)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireQuietStdout(); err != nil {
		return err
	}

	notes := notify.NewChannel(16)
	model := ui.NewModel(ui.Deps{
		Refresher:     a.aggregator(notes),
		Stopper:       a.manager,
		Connector:     a.manager,
		Repo:          a.repo,
		Profiles:      a.profiles,
		Notifications: notes,
		Scanner:       a.scanner,
		Registry:      a.registry,
		Preflight:     func() *preflight.Results { return a.preflight(ctx) },
		Logger:        a.logger,
		Version:       appVersion,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running app: %w", err)
	}
	if n := notes.Dropped(); n > 0 {
		a.logger.Warn("notifications dropped", "count", n)
	}
	return nil
}

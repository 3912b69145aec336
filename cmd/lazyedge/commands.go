package lazyedge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/device"
	"github.com/icarus-itcs/lazyedge/internal/discovery"
	"github.com/icarus-itcs/lazyedge/internal/edge"
	"github.com/icarus-itcs/lazyedge/internal/mcpserver"
	"github.com/icarus-itcs/lazyedge/internal/notify"
	"github.com/icarus-itcs/lazyedge/internal/status"
)

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printTable renders a bordered table on a terminal and tab separated
// lines otherwise.
func printTable(headers []string, rows [][]string) {
	if !stdoutIsTerminal() {
		for _, r := range rows {
			for i, c := range r {
				if i > 0 {
					fmt.Print("\t")
				}
				fmt.Print(c)
			}
			fmt.Println()
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#14B8A6"))).
		Headers(headers...).
		Rows(rows...)
	fmt.Println(t.String())
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Query every bookmarked device and print its state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, demoMode)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireProfile(); err != nil {
			return err
		}

		w := notify.NewWriter(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
		rows, err := a.aggregator(w).RefreshAll(ctx, status.NewCycleID())
		if err != nil {
			return err
		}

		out := make([][]string, 0, len(rows))
		for _, d := range rows {
			out = append(out, []string{d.ID(), d.Name(), d.Caption(), device.Route(d).String()})
		}
		printTable([]string{"ID", "NAME", "STATE", "ACTION"}, out)
		if stdoutIsTerminal() {
			fmt.Println(status.Summarize(rows))
		}
		return nil
	},
}

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage device bookmarks",
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add <product_id> <device_id>",
	Short: "Bookmark a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		address, _ := cmd.Flags().GetString("address")

		a, err := newApp(cmd.Context(), demoMode)
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.repo.Save(cmd.Context(), bookmark.Bookmark{
			ProductID: args[0],
			DeviceID:  args[1],
			Name:      name,
			Address:   address,
		})
		if err != nil {
			return err
		}
		fmt.Printf("bookmarked %s as %s\n", b.DisplayName(), b.ID)
		return nil
	},
}

var bookmarkRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a bookmark",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), demoMode)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.repo.Delete(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, bookmark.ErrNotFound) {
				return fmt.Errorf("no bookmark %q", args[0])
			}
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var bookmarkLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List bookmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), demoMode)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.repo.List(cmd.Context())
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, b := range list {
			rows = append(rows, []string{b.ID, b.DisplayName(), b.Address, b.Role, b.CreatedAt.Local().Format(time.DateTime)})
		}
		printTable([]string{"ID", "NAME", "ADDRESS", "ROLE", "CREATED"}, rows)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or create the local profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the local profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), demoMode)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.profiles.Load()
		if err != nil {
			return err
		}
		fmt.Printf("username:  %s\n", p.Username)
		fmt.Printf("client id: %s\n", p.ClientID)
		fmt.Printf("created:   %s\n", p.CreatedAt.Local().Format(time.DateTime))
		fmt.Printf("file:      %s\n", a.profiles.Path())
		return nil
	},
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create the local profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp(cmd.Context(), demoMode)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.profiles.Exists() && !force {
			return fmt.Errorf("profile already exists at %s (use --force to replace it)", a.profiles.Path())
		}
		p, err := a.profiles.Create(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created profile %s (%s)\n", p.Username, p.ClientID)
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the local network for devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetBool("save")

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, demoMode)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.scanner == nil {
			return errors.New("local discovery is disabled (discovery.mdns: false)")
		}

		services, err := a.registry.Scan(ctx, a.scanner)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(services))
		for _, s := range services {
			state := ""
			if _, err := a.repo.Get(ctx, s.Key()); err == nil {
				state = "bookmarked"
			} else if save {
				if _, err := a.repo.Save(ctx, s.Bookmark()); err != nil {
					return err
				}
				state = "saved"
			}
			rows = append(rows, []string{s.Key(), s.Bookmark().DisplayName(), s.Address, state})
		}
		printTable([]string{"ID", "NAME", "ADDRESS", ""}, rows)
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Aliases: []string{"preflight"},
	Short:   "Check configuration, storage and network prerequisites",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		results := a.preflight(cmd.Context())
		for _, c := range results.Checks {
			line := fmt.Sprintf("%-8s %-18s %s", c.Status, c.Name, c.Message)
			if c.Path != "" {
				line += "  (" + c.Path + ")"
			}
			fmt.Println(line)
		}
		fmt.Println()
		fmt.Println(results.Summary())
		if results.HasErrors {
			return errors.New("preflight checks failed")
		}
		return nil
	},
}

type simulateFile struct {
	Users []edge.SimUser `yaml:"users"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <product_id> <device_id>",
	Short: "Serve a simulated device on the local network",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		addr, _ := flags.GetString("listen")
		usersFile, _ := flags.GetString("users")
		pairingOpen, _ := flags.GetBool("pairing-open")
		pairingRole, _ := flags.GetString("pairing-role")
		unreachable, _ := flags.GetBool("unreachable")
		advertise, _ := flags.GetBool("advertise")
		name, _ := flags.GetString("name")

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if advertise && !a.cfg.Discovery.MDNS {
			return errors.New("cannot advertise: discovery.mdns is disabled")
		}
		log := a.logger.With("device", bookmark.Key(args[0], args[1]))

		sim := edge.NewSimulator(args[0], args[1], log)
		if usersFile != "" {
			data, err := os.ReadFile(usersFile)
			if err != nil {
				return fmt.Errorf("read users: %w", err)
			}
			var f simulateFile
			if err := yaml.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("parse users: %w", err)
			}
			for _, u := range f.Users {
				sim.AddUser(u)
			}
		}
		sim.SetPairingOpen(pairingOpen, pairingRole)
		sim.SetUnreachable(unreachable)

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		srv := &http.Server{Handler: sim.Handler(), ReadHeaderTimeout: 5 * time.Second}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(ln) }()

		fmt.Printf("simulating %s on ws://%s%s\n", bookmark.Key(args[0], args[1]), ln.Addr(), edge.Path)

		if advertise {
			_, portStr, _ := net.SplitHostPort(ln.Addr().String())
			port, _ := strconv.Atoi(portStr)
			if name == "" {
				name = args[1]
			}
			mdns := discovery.NewMDNS(a.cfg.Discovery, log)
			go func() {
				if err := mdns.Advertise(ctx, name, port, args[0], args[1], map[string]string{"name": name}); err != nil {
					log.Warn("advertise failed", "error", err)
				}
			}()
		}

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}

		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve device tools over MCP on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), demoMode)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireQuietStdout(); err != nil {
			return err
		}
		if err := a.requireProfile(); err != nil {
			return err
		}

		s := mcpserver.New(a.manager, a.repo, status.Options{Order: status.Order(a.cfg.UI.Order)}, appVersion, a.logger)
		a.logger.Info("mcp server starting", "transport", "stdio")
		return s.ServeStdio()
	},
}

func init() {
	bookmarkAddCmd.Flags().String("name", "", "display name")
	bookmarkAddCmd.Flags().String("address", "", "host:port of the device's direct channel")
	bookmarkCmd.AddCommand(bookmarkAddCmd, bookmarkRmCmd, bookmarkLsCmd)

	profileCreateCmd.Flags().Bool("force", false, "replace an existing profile")
	profileCmd.AddCommand(profileShowCmd, profileCreateCmd)

	discoverCmd.Flags().Bool("save", false, "bookmark every device found")

	simulateCmd.Flags().String("listen", "127.0.0.1:0", "listen address")
	simulateCmd.Flags().String("users", "", "YAML file with registered users")
	simulateCmd.Flags().Bool("pairing-open", false, "accept local open pairing")
	simulateCmd.Flags().String("pairing-role", "Guest", "role granted by local open pairing")
	simulateCmd.Flags().Bool("unreachable", false, "refuse every connection")
	simulateCmd.Flags().Bool("advertise", false, "advertise the device over mDNS")
	simulateCmd.Flags().String("name", "", "advertised display name (default: device id)")
}

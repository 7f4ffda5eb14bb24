package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this device with the server",
	Long: `Generates a new RSA key pair and sends the public key, together with the
configured account id, to the server. The private key is stored only if the
server accepts the registration. Registering again replaces the key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.runOperation(a.dispatcher.Register)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the command list from the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.runOperation(a.dispatcher.FetchCommands)
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <number>",
	Short: "Execute a command on the server",
	Long:  `Executes the command with the given number. Successful executions are counted in the usage history.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid command number %q", args[0])
		}
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.runOperation(func() { a.dispatcher.ExecuteCommand(number) })
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List commands, most used first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.hub.State()
		if len(s.Commands) == 0 {
			fmt.Println("No commands. Run 'cmlsync fetch' to load them.")
			return nil
		}

		totals := a.history.Totals(s.History)
		fmt.Println("\n=== Commands ===")
		for _, c := range a.history.Rank(s.Commands, s.History) {
			fmt.Printf("  %4d  %-40s %d\n", c.Number, c.Name, totals[c.Number])
		}
		fmt.Printf("\nUsage counted over the last %d active days.\n", domain.RetentionDays)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registration, settings and endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.hub.State()
		fmt.Println("\n=== cmlsync Status ===")
		if s.IsRegistered() {
			fmt.Printf("Registration: registered %s\n", s.RegistrationTimestamp.Local().Format(time.RFC1123))
		} else if s.PrivateKeyEncoded != "" {
			fmt.Println("Registration: key present, registration date unknown")
		} else {
			fmt.Println("Registration: NOT REGISTERED")
			fmt.Println("              Run 'cmlsync register' after setting the API URL.")
		}
		printSettings(s.Settings)

		name, connected := a.resolver.CurrentWifi(cmd.Context())
		if connected {
			fmt.Printf("WiFi: %s\n", name)
		} else {
			fmt.Println("WiFi: not connected")
		}
		fmt.Printf("Endpoint: %s\n", a.resolver.Resolve(s.Settings, name, connected))
		fmt.Printf("Commands: %d known, history covers %d days\n", len(s.Commands), len(s.History))
		fmt.Printf("State DB: %s\n", a.records.Path())
		fmt.Println("======================")
		return nil
	},
}

func printSettings(s domain.Settings) {
	show := func(v string) string {
		if v == "" {
			return "(unset)"
		}
		return v
	}
	fmt.Printf("API URL: %s\n", show(s.APIURL))
	fmt.Printf("Account ID: %s\n", show(s.AccountID))
	fmt.Printf("WiFi pattern: %s\n", show(s.WifiPattern))
	fmt.Printf("WiFi URL: %s\n", show(s.WifiURL))
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change user settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show user settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		printSettings(a.hub.State().Settings)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change user settings",
	Long: `Changes only the settings whose flags are given. Pass an empty value
(e.g. --wifi-pattern "") to unset one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		str := func(name string) (string, bool) {
			if !flags.Changed(name) {
				return "", false
			}
			v, _ := flags.GetString(name)
			return v, true
		}

		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.hub.Update(cmd.Context(), func(s domain.AggregateState) domain.AggregateState {
			if v, ok := str("api-url"); ok {
				s.Settings.APIURL = v
			}
			if v, ok := str("account-id"); ok {
				s.Settings.AccountID = v
			}
			if v, ok := str("wifi-pattern"); ok {
				s.Settings.WifiPattern = v
			}
			if v, ok := str("wifi-url"); ok {
				s.Settings.WifiURL = v
			}
			return s
		})
		if err != nil {
			return err
		}
		printSettings(a.hub.State().Settings)
		return nil
	},
}

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Inspect or import data from the previous app version",
}

var legacySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show which legacy fields are available for migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.migrator == nil {
			fmt.Println("No legacy data store found.")
			return nil
		}
		fmt.Print(a.migrator.Summary(cmd.Context()))
		return nil
	},
}

var legacyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Write exported legacy preferences into the legacy store",
	Long: `Writes values exported from the previous app version into the legacy
store. They are migrated the next time cmlsync starts without current state.`,
	Args: cobra.NoArgs,
	RunE: runLegacyImport,
}

func init() {
	f := settingsSetCmd.Flags()
	f.String("api-url", "", "Public server URL")
	f.String("account-id", "", "Account id sent with the registration")
	f.String("wifi-pattern", "", "Regular expression matched against the full WiFi name")
	f.String("wifi-url", "", "Server URL used on matching WiFi networks")
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	lf := legacyImportCmd.Flags()
	lf.String("server-url", "", "Legacy serverUrl")
	lf.String("sent-date", "", "Legacy sentDate (ISO local date-time)")
	lf.String("private-key", "", "Legacy base64 private key")
	legacyCmd.AddCommand(legacySummaryCmd)
	legacyCmd.AddCommand(legacyImportCmd)
}

// withTimeout bounds short CLI-side store operations.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 10*time.Second)
}

func logIfErr(logger *zap.Logger, msg string, err error) {
	if err != nil {
		logger.Warn(msg, zap.Error(err))
	}
}

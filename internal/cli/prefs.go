package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/seuros/mfdash/internal/config"
	"github.com/seuros/mfdash/internal/database"
	"github.com/seuros/mfdash/internal/prefs"
)

// openStore opens the configured preference backend, connecting postgres
// first when it is the backend.
func openStore(ctx context.Context, cfg *config.Config) (prefs.Store, func(), error) {
	if cfg.PrefsBackend == prefs.BackendPostgres && database.DB == nil {
		if err := database.ConnectURL(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
	}
	store, err := prefs.Open(ctx, prefs.Options{
		Backend:    cfg.PrefsBackend,
		DataDir:    cfg.DataDir,
		RedisURL:   cfg.RedisURL,
		SQLitePath: cfg.SQLitePath,
		DB:         database.DB,
	})
	if err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("open preference store: %w", err)
	}
	return store, func() {
		_ = store.Close()
		_ = database.Close()
	}, nil
}

// withStore loads config, opens the store and runs fn against it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store prefs.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}

// maskToken keeps the last four characters so two tokens can be told apart.
func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}

// readSecret reads a value without echo when stdin is a terminal, otherwise
// the first line of stdin.
var readSecret = func(prompt string, in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and write stored preferences",
	Long: `Read and write the key-value preferences the dashboard keeps between visits.

Keys in use:
  auth.id_token       bearer token forwarded to the analytics API
  filters.<widget>    last submitted filter selection
  tables.<name>       saved table layout`,
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := prefs.ValidateKey(key); err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, store prefs.Store) error {
			value, found, err := store.Get(ctx, key)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("preference %q not set", key)
			}
			if key == prefs.TokenKey {
				reveal, _ := cmd.Flags().GetBool("reveal")
				if !reveal {
					value = maskToken(value)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		})
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store a preference",
	Long: `Store a preference. When value is omitted it is read from stdin, without
echo on a terminal, which keeps tokens out of shell history.

Example:
  mfdash prefs set auth.id_token
  mfdash prefs set ui.theme dark`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := prefs.ValidateKey(key); err != nil {
			return err
		}
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			v, err := readSecret("Value: ", cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			value = v
		}
		if value == "" {
			return fmt.Errorf("value cannot be empty")
		}
		return withStore(cmd, func(ctx context.Context, store prefs.Store) error {
			if err := store.Set(ctx, key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored %s\n", key)
			return nil
		})
	},
}

var prefsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a stored preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := prefs.ValidateKey(key); err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, store prefs.Store) error {
			if err := store.Delete(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", key)
			return nil
		})
	},
}

func init() {
	prefsGetCmd.Flags().Bool("reveal", false, "Print the API token unmasked")
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd, prefsDeleteCmd)
	RootCmd.AddCommand(prefsCmd)
}

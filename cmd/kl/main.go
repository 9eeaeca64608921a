package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"keyline/internal/app"
	"keyline/internal/config"
	"keyline/internal/credential"
	"keyline/internal/server"
	"keyline/internal/webhooks"
	keylinesdk "keyline/sdk/go"
)

const defaultAPIURL = "http://127.0.0.1:8080/v1"

var rootCmd = &cobra.Command{
	Use:   "kl",
	Short: "Keyline CLI",
	Long: `Keyline tracks who holds which physical key and why.
- Accounts: supervisors manage everything, staff work their own tasks.
- Keys: Available or Assigned to exactly one account.
- Tasks: creating a task with a key checks the key out to the assignee;
  completing it (all checklist items ticked) returns the key.
- History: every checkout and return, newest first.
Run 'kl serve' to start the API, then 'kl login' to get a token.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("KL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "path to keyline.yml (serve, config show)")
	rootCmd.PersistentFlags().String("api-url", defaultAPIURL, "API base URL including base path")
	rootCmd.PersistentFlags().String("token", "", "bearer token (defaults to the one stored by kl login)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(eventsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") || cfg.Server.Addr == "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") || cfg.Server.BasePath == "" {
				cfg.Server.BasePath = basePath
			}
			if secret := viper.GetString("jwt-secret"); secret != "" {
				cfg.Server.JWTSecret = secret
			}
			ctx := cmd.Context()
			a, err := app.Bootstrap(ctx, cfg, app.Options{})
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, TokenTTL: cfg.TokenLifetime()},
				Metrics:  a.Metrics,
				Logger:   a.Logger,
			})
			if err != nil {
				return err
			}
			dispatcher := webhooks.New(a.Engine.Events, webhooks.Options{
				Hooks:         cfg.Webhooks.Hooks,
				RatePerSecond: cfg.Webhooks.RatePerSecond,
				Burst:         cfg.Webhooks.Burst,
				Logger:        a.Logger,
				Metrics:       a.Metrics,
			})
			go dispatcher.Run(ctx)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Keyline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens (env KL_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect or create keyline.yml"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret != "" {
				cfg.Server.JWTSecret = "********"
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default keyline.yml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := config.Path(dir)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o600); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}

func loginCmd() *cobra.Command {
	var username, password, role string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(os.Stderr, "password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			apiURL := viper.GetString("api-url")
			res, err := keylinesdk.New(apiURL, "").Login(cmd.Context(), username, password, role)
			if err != nil {
				return err
			}
			store, err := credential.Open("")
			if err != nil {
				return err
			}
			if err := store.SetToken(apiURL, res.Token); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("logged in as %s (%s) until %s\n", res.Account.Username, res.Account.Role, res.ExpiresAt)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&role, "role", "staff", "role to log in as (supervisor|staff)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiURL := viper.GetString("api-url")
			c, err := client()
			if err == nil {
				if err := c.Logout(cmd.Context()); err != nil {
					fmt.Fprintln(os.Stderr, "warning:", err)
				}
			}
			store, err := credential.Open("")
			if err != nil {
				return err
			}
			return store.DeleteToken(apiURL)
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated account and its permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client()
			if err != nil {
				return err
			}
			me, err := c.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(me)
			}
			renderTable(
				table.Row{"ID", "Username", "Name", "Role", "Permissions"},
				[]table.Row{{me.Account.ID, me.Account.Username, me.Account.Name, me.Account.Role, strings.Join(me.Permissions, ", ")}},
			)
			return nil
		},
	}
}

// --- helpers ---

// client builds an API client from --api-url and --token, falling back to
// the keyring token stored by kl login.
func client() (*keylinesdk.Client, error) {
	apiURL := viper.GetString("api-url")
	token := viper.GetString("token")
	if token == "" {
		store, err := credential.Open("")
		if err != nil {
			return nil, err
		}
		token, err = store.Token(apiURL)
		if err != nil {
			return nil, err
		}
	}
	return keylinesdk.New(apiURL, token), nil
}

func withClient(fn func(context.Context, *keylinesdk.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := client()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), c)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
}

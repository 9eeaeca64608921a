package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"keyline/internal/db"
	"keyline/internal/migrate"
	"keyline/internal/repo"
	keylinesdk "keyline/sdk/go"
)

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{Use: "snapshot", Short: "Export engine state to SQL for inspection"}
	snap.PersistentFlags().String("driver", db.DriverSQLite, "sqlite|pgx")
	snap.PersistentFlags().String("dsn", db.DefaultDSN, "database DSN")
	_ = viper.BindPFlag("snapshot-driver", snap.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("snapshot-dsn", snap.PersistentFlags().Lookup("dsn"))
	snap.AddCommand(snapshotExportCmd())
	snap.AddCommand(snapshotListCmd())
	snap.AddCommand(snapshotShowCmd())
	return snap
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(ctx, db.Config{Driver: viper.GetString("snapshot-driver"), DSN: viper.GetString("snapshot-dsn")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func snapshotExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Fetch /snapshot and store it",
		RunE: withClient(func(ctx context.Context, c *keylinesdk.Client) error {
			snap, err := c.Snapshot(ctx)
			if err != nil {
				return err
			}
			return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
				id, err := r.SaveSnapshot(ctx, snap)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": id, "taken_at": snap.TakenAt})
				}
				fmt.Printf("exported snapshot %s (%d accounts, %d keys, %d tasks, %d history)\n",
					id, len(snap.Accounts), len(snap.Keys), len(snap.Tasks), len(snap.History))
				return nil
			})
		}),
	}
}

func snapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSnapshots(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				rows := make([]table.Row, 0, len(items))
				for _, s := range items {
					rows = append(rows, table.Row{s.ID, s.TakenAt, s.Accounts, s.Keys, s.Tasks, s.History})
				}
				renderTable(table.Row{"ID", "Taken", "Accounts", "Keys", "Tasks", "History"}, rows)
				return nil
			})
		},
	}
}

func snapshotShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored snapshot (latest by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				snap, err := r.LoadSnapshot(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				fmt.Println("taken at", snap.TakenAt)
				if err := printAccounts(snap.Accounts); err != nil {
					return err
				}
				if err := printKeys(snap.Keys); err != nil {
					return err
				}
				return printTasks(snap.Tasks)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "snapshot id")
	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xiaot623/tgrelay/internal/config"
	"github.com/xiaot623/tgrelay/internal/presence"
	store "github.com/xiaot623/tgrelay/internal/repository"
	"github.com/xiaot623/tgrelay/internal/service"
)

// openService opens the configured database for a one-shot admin command.
func openService(ctx context.Context, cfg *config.Config) (*service.Service, func(), error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger := newLogger(cfg)
	svc := service.New(db, presence.NewStoreTracker(db, cfg.OnlineWindow), service.Config{
		ActiveWindow: cfg.ActiveWindow,
		ChannelURL:   cfg.ChannelURL,
	}, logger)
	return svc, func() { _ = db.Close() }, nil
}

func newStatsCommand(load func() (*config.Config, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc, closeFn, err := openService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := svc.DashboardStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(stats)
			}
			fmt.Fprintf(out, "Total users:     %d\n", stats.TotalUsers)
			fmt.Fprintf(out, "Active users:    %d\n", stats.ActiveUsers)
			fmt.Fprintf(out, "Total messages:  %d\n", stats.TotalMessages)
			fmt.Fprintf(out, "New joins today: %d\n", stats.NewJoinsToday)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newUsersCommand(load func() (*config.Config, error)) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc, closeFn, err := openService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.ListUsers(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUSERNAME\tLABEL\tONLINE\tJOINED")
			for _, u := range result.Users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\n",
					u.ID, u.FullName, u.Username, u.Label, u.IsOnline, u.JoinDate.Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d users\n", result.Page, len(result.Users), result.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Users per page")
	return cmd
}

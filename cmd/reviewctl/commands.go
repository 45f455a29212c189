package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/invoice-review/internal/dashboard"
	"github.com/angelmondragon/invoice-review/internal/reconciliation"
	"github.com/angelmondragon/invoice-review/pkg/auth"
	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// backend opens what each command needs; close releases it.
type backend struct {
	loadJWT       func() (config.JWTConfig, error)
	openQueue     func(ctx context.Context) (svc reconciliation.Service, close func() error, err error)
	openDashboard func(ctx context.Context) (svc dashboard.Service, close func() error, err error)
	now           func() time.Time
}

func productionBackend() backend {
	logg := logger.New(logger.Options{ServiceName: "reviewctl", Output: os.Stderr})
	openDB := func(ctx context.Context) (*db.Client, error) {
		cfg, err := config.LoadDB()
		if err != nil {
			return nil, err
		}
		return db.New(ctx, cfg, logg)
	}
	return backend{
		loadJWT: config.LoadJWT,
		openQueue: func(ctx context.Context) (reconciliation.Service, func() error, error) {
			client, err := openDB(ctx)
			if err != nil {
				return nil, nil, err
			}
			svc, err := reconciliation.NewService(reconciliation.ServiceParams{
				Repo:   reconciliation.NewRepository(client.DB()),
				Logger: logg,
			})
			if err != nil {
				_ = client.Close()
				return nil, nil, err
			}
			return svc, client.Close, nil
		},
		openDashboard: func(ctx context.Context) (dashboard.Service, func() error, error) {
			client, err := openDB(ctx)
			if err != nil {
				return nil, nil, err
			}
			svc, err := dashboard.NewService(dashboard.NewRepository(client.DB()), logg)
			if err != nil {
				_ = client.Close()
				return nil, nil, err
			}
			return svc, client.Close, nil
		},
		now: time.Now,
	}
}

func newRootCommand(b backend) *cobra.Command {
	root := &cobra.Command{
		Use:   "reviewctl",
		Short: "Operator tooling for the invoice review service",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.AddCommand(newTokenCommand(b), newQueueCommand(b), newMetricsCommand(b))
	return root
}

func newTokenCommand(b backend) *cobra.Command {
	var reviewer, role, session string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a reviewer access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := enums.ParseReviewerRole(role)
			if err != nil {
				return err
			}
			cfg, err := b.loadJWT()
			if err != nil {
				return err
			}
			if session == "" {
				session = uuid.NewString()
			}
			token, err := auth.MintAccessToken(cfg, b.now(), auth.AccessTokenPayload{
				Reviewer: strings.TrimSpace(reviewer),
				Role:     parsed,
				JTI:      session,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "name stamped on reviewed records")
	cmd.Flags().StringVar(&role, "role", string(enums.RoleReviewer), "reviewer, supervisor or operator")
	cmd.Flags().StringVar(&session, "session", "", "review session id (random when empty)")
	return cmd
}

func newQueueCommand(b backend) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print invoice ids in the reconciliation queue",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			svc, closeFn, err := b.openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeFn(); err == nil {
					err = cerr
				}
			}()

			queue, err := svc.Queue(cmd.Context(), status)
			if err != nil {
				return err
			}
			if queue.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), queue.Warning)
			}
			for _, id := range queue.InvoiceIDs {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(enums.ReviewStatusPending), "review status filter or All")
	return cmd
}

func newMetricsCommand(b backend) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the reconciliation dashboard metrics as JSON",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			svc, closeFn, err := b.openDashboard(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeFn(); err == nil {
					err = cerr
				}
			}()

			m, err := svc.Metrics(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", dashboard.UnavailableMessage, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
}

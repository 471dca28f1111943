package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	web "choirreport/internal/adapters/http"
	"choirreport/internal/adapters/http/middleware"
	"choirreport/internal/application/orchestrators"
	emailDomain "choirreport/internal/domain/email"
)

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "choirreport",
		Short:         "Weekly choir attendance reports",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML settings file (CHOIRREPORT_* variables override it)")
	pf.StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn or error")
	pf.StringVar(&flags.now, "now", "", "run as if the choir's clock read this time (YYYY-MM-DD [HH:MM])")
	pf.BoolVar(&flags.force, "force", false, "send even when the report is not worth sending")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "render and log emails without sending them")

	for _, kind := range orchestrators.Kinds {
		root.AddCommand(reportCmd(kind, &flags))
	}
	root.AddCommand(serveCmd(&flags))
	root.AddCommand(historyCmd(&flags))
	root.AddCommand(hashPasswordCmd())
	return root
}

var reportShort = map[orchestrators.Kind]string{
	orchestrators.KindAttendance:  "Email last rehearsal's attendance against the roster",
	orchestrators.KindProjected:   "Email who plans to attend the next rehearsal",
	orchestrators.KindConsistency: "Email mismatches between the roster and the member portal",
	orchestrators.KindNags:        "Email singers who have not marked their plans",
}

func reportCmd(kind orchestrators.Kind, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind),
		Short: reportShort[kind],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return runReport(cmd.Context(), a, kind, *flags, cmd.OutOrStdout())
		},
	}
}

// runReport executes one scheduled run and prints its deliveries.
func runReport(ctx context.Context, a *app, kind orchestrators.Kind, flags globalFlags, out io.Writer) error {
	now, err := clock(flags.now, a.settings.Location())
	if err != nil {
		return err
	}
	if err := a.openArchive(); err != nil {
		return err
	}
	deps := a.runDeps(now)

	summary, err := orchestrators.ExecuteRun(ctx, runInput(a.settings, kind, flags), deps)
	printDeliveries(out, summary.Deliveries)
	if err != nil {
		a.reporter.CaptureError(ctx, err, string(kind), summary.RunID)
		return err
	}
	return nil
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve report previews with a send button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.settings.Serve.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, *flags)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default serve.addr)")
	return cmd
}

// serve runs the preview server until ctx is cancelled.
func serve(ctx context.Context, a *app, flags globalFlags) error {
	s := a.settings
	if err := s.RequireServe(); err != nil {
		return err
	}
	key, _ := s.CSRFKey()
	now, err := clock(flags.now, s.Location())
	if err != nil {
		return err
	}
	if err := a.openArchive(); err != nil {
		return err
	}
	deps := a.runDeps(now)

	runs := make(map[orchestrators.Kind]orchestrators.RunInput, len(orchestrators.Kinds))
	for _, k := range orchestrators.Kinds {
		runs[k] = runInput(s, k, flags)
	}
	srv, err := web.NewServer(web.Config{
		Runs:           runs,
		Credentials:    middleware.Credentials{Username: s.Serve.Username, PasswordHash: []byte(s.Serve.PasswordHash)},
		CSRFKey:        key,
		Secure:         s.Serve.Secure,
		TrustedOrigins: s.Serve.TrustedOrigins,
		SourceCacheTTL: s.Serve.CacheTTL,
		SlowRequest:    s.Serve.SlowRequest,
	}, web.Deps{Run: deps, Archive: a.store, Collector: a.collector})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              s.Serve.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // a send may wait out delivery retries
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting", "addr", s.Serve.Addr, "version", version, "secure", s.Serve.Secure)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func historyCmd(flags *globalFlags) *cobra.Command {
	var kind, runID string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived deliveries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if kind != "" && kind != string(orchestrators.KindError) {
				if _, err := orchestrators.ParseKind(kind); err != nil {
					return err
				}
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			a, err := newApp(*flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openArchive(); err != nil {
				return err
			}
			if a.store == nil {
				return fmt.Errorf("history needs archive.path")
			}

			var deliveries []emailDomain.Delivery
			if runID != "" {
				deliveries, err = a.store.ListByRun(cmd.Context(), runID)
			} else {
				deliveries, err = a.store.List(cmd.Context(), kind, limit)
			}
			if err != nil {
				return err
			}
			printDeliveries(cmd.OutOrStdout(), deliveries)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only this report kind")
	cmd.Flags().StringVar(&runID, "run", "", "only the deliveries of this run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum deliveries")
	return cmd
}

// hashPasswordCmd prints the bcrypt hash for serve.password_hash, reading the
// password from the first line of stdin.
func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a preview server password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return fmt.Errorf("empty password on stdin")
			}
			hash, err := middleware.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// printDeliveries writes one aligned row per delivery.
func printDeliveries(w io.Writer, deliveries []emailDomain.Delivery) {
	if len(deliveries) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tKIND\tSTATUS\tATTEMPTS\tTO\tSUBJECT")
	for _, d := range deliveries {
		status := d.Status
		if d.Error != "" {
			status += " (" + d.Error + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			d.CreatedAt.Local().Format("2006-01-02 15:04"), d.Kind, status, d.Attempts, d.MaxAttempts,
			strings.Join(d.To, ", "), d.Subject)
	}
	tw.Flush()
}

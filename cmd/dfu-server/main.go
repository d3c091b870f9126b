package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Drewww17/m2-sa-luminarias/internal/config"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/auditlog"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/scan"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/user"
	"github.com/Drewww17/m2-sa-luminarias/internal/domain/verification"
	"github.com/Drewww17/m2-sa-luminarias/internal/integrity"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/db"
	"github.com/Drewww17/m2-sa-luminarias/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "dfu-server",
		Short:        "DFU screening API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hashesCmd())
	rootCmd.AddCommand(usersCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// withStores loads and validates config, opens the configured store and
// runs fn. The audit logger is drained before the store closes.
func withStores(fn func(ctx context.Context, cfg *config.Config, st *stores, audit *auditlog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	audit := auditlog.NewLogger(st.audit, newLogger(cfg), cfg.AuditBuffer)
	audit.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = audit.Close(closeCtx)
	}()

	return fn(ctx, cfg, st, audit)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	migrator := func(st *stores, schema string) (*db.Migrator, error) {
		if st.pool == nil {
			return nil, nil
		}
		return db.NewMigrator(st.pool, migrations.FS, schema)
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withStores(func(ctx context.Context, _ *config.Config, st *stores, _ *auditlog.Logger) error {
				m, err := migrator(st, schema)
				if err != nil {
					return err
				}
				if m == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Store driver %s has no schema to migrate.\n", st.driver)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", m.Schema())
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withStores(func(ctx context.Context, _ *config.Config, st *stores, _ *auditlog.Logger) error {
				m, err := migrator(st, schema)
				if err != nil {
					return err
				}
				if m == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Store driver %s has no schema to migrate.\n", st.driver)
					return nil
				}
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd, m.Schema(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func hashesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hashes",
		Short: "Maintain scan integrity hashes",
	}

	migrateHashes := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite every scan hash with the configured scheme",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			workers, _ := cmd.Flags().GetInt("workers")
			return withStores(func(ctx context.Context, cfg *config.Config, st *stores, audit *auditlog.Logger) error {
				svc := scan.NewService(st.scans, audit, newLogger(cfg), scanOptions(cfg))
				report, err := svc.RehashAll(ctx, dryRun, workers)
				if err != nil {
					return fmt.Errorf("hash migration failed: %w", err)
				}
				printRehashReport(cmd, report)
				switch {
				case report.Failed > 0:
					return fmt.Errorf("%d scan(s) could not be rehashed", report.Failed)
				case report.Compromised > 0:
					return fmt.Errorf("%d scan(s) failed verification and were not rehashed", report.Compromised)
				}
				return nil
			})
		},
	}
	migrateHashes.Flags().Bool("dry-run", false, "Only report what would change")
	migrateHashes.Flags().Int("workers", 4, "Concurrent writers")
	cmd.AddCommand(migrateHashes)

	auditHashes := &cobra.Command{
		Use:   "audit",
		Short: "Verify every stored scan hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, _ := cmd.Flags().GetInt("workers")
			return withStores(func(ctx context.Context, cfg *config.Config, st *stores, _ *auditlog.Logger) error {
				report, err := verification.NewVerifier(st.scans, newLogger(cfg)).AuditAll(ctx, workers)
				if err != nil {
					return fmt.Errorf("hash audit failed: %w", err)
				}
				printAuditReport(cmd, report)
				if report.Compromised > 0 {
					return fmt.Errorf("%d scan(s) failed verification", report.Compromised)
				}
				return nil
			})
		},
	}
	auditHashes.Flags().Int("workers", 4, "Concurrent verifiers")
	cmd.AddCommand(auditHashes)

	computeHash := &cobra.Command{
		Use:   "compute [file]",
		Short: "Print the digest of a JSON report document, or check it against --expect",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemeName, _ := cmd.Flags().GetString("scheme")
			expect, _ := cmd.Flags().GetString("expect")
			scheme, err := integrity.ParseScheme(schemeName)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			doc, err := decodeReport(in)
			if err != nil {
				return err
			}
			return computeReportHash(cmd, scheme, doc, expect)
		},
	}
	computeHash.Flags().String("scheme", integrity.CurrentScheme.String(), "Hash scheme: sorted or fixed")
	computeHash.Flags().String("expect", "", "Stored hash to compare against")
	cmd.AddCommand(computeHash)

	return cmd
}

// decodeReport reads one JSON object. Numbers stay float64 so numeric
// version fields stringify the way the report generator printed them.
func decodeReport(r io.Reader) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode report document: %w", err)
	}
	return doc, nil
}

func computeReportHash(cmd *cobra.Command, scheme integrity.Scheme, doc map[string]interface{}, expect string) error {
	fields := integrity.FieldsFromMap(doc)
	out := cmd.OutOrStdout()
	if expect == "" {
		hash, err := integrity.Hash(scheme, fields)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hash)
		return nil
	}

	expect = strings.ToLower(strings.TrimSpace(expect))
	if len(expect) != integrity.DigestLength {
		return fmt.Errorf("expected hash must be %d hex characters, got %d", integrity.DigestLength, len(expect))
	}
	ok, err := integrity.Matches(scheme, fields, expect)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "mismatch")
		return fmt.Errorf("document does not match the %s hash", scheme)
	}
	fmt.Fprintln(out, "match")
	return nil
}

func printRehashReport(cmd *cobra.Command, r *scan.RehashReport) {
	out := cmd.OutOrStdout()
	mode := "applied"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "Hash migration to scheme %s (%s)\n", r.Scheme, mode)
	fmt.Fprintf(out, "  total:     %d\n", r.Total)
	fmt.Fprintf(out, "  updated:   %d\n", r.Updated)
	fmt.Fprintf(out, "  unchanged: %d\n", r.Unchanged)
	fmt.Fprintf(out, "  failed:    %d\n", r.Failed)
	for _, id := range r.FailedIDs {
		fmt.Fprintf(out, "    %s\n", id)
	}
	fmt.Fprintf(out, "  compromised (left as stored): %d\n", r.Compromised)
	for _, id := range r.CompromisedIDs {
		fmt.Fprintf(out, "    %s\n", id)
	}
}

func printAuditReport(cmd *cobra.Command, r *verification.AuditReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Verified %d of %d scan(s)\n", r.Verified, r.Total)
	if r.Compromised > 0 {
		fmt.Fprintf(out, "Integrity compromised (%d):\n", r.Compromised)
		for _, id := range r.CompromisedIDs {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user profiles",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator profile for an auth subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			email, _ := cmd.Flags().GetString("email")
			first, _ := cmd.Flags().GetString("first-name")
			last, _ := cmd.Flags().GetString("last-name")
			return withStores(func(ctx context.Context, cfg *config.Config, st *stores, audit *auditlog.Logger) error {
				svc := user.NewService(st.users, audit, newLogger(cfg))
				p, err := svc.CreateAdmin(ctx, id, email, first, last)
				if err != nil {
					return fmt.Errorf("create admin: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", p.ID, p.SystemID)
				return nil
			})
		},
	}
	createAdmin.Flags().String("id", "", "Auth subject of the administrator")
	createAdmin.Flags().String("email", "", "Email address")
	createAdmin.Flags().String("first-name", "", "First name")
	createAdmin.Flags().String("last-name", "", "Last name")
	_ = createAdmin.MarkFlagRequired("id")
	cmd.AddCommand(createAdmin)

	return cmd
}

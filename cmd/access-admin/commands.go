package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/config"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/persistence"
	"github.com/spec-kit/access-service/internal/repository"
	"github.com/spec-kit/access-service/internal/service"
	"github.com/spec-kit/access-service/migrations"
)

const passwordEnv = "ACCESS_ADMIN_PASSWORD"

// env is what every subcommand needs once connected.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
	store  repository.Store
}

func (e *env) close() {
	e.pg.Close()
	_ = e.logger.Sync()
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, logger: logger, pg: pg, store: repository.NewPostgresStore(pg.PoolHandle())}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "access-admin",
		Short:         "Bootstrap tooling for the access service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), staffCmd(), terminalCmd())
	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			return persistence.RunMigrations(cmd.Context(), e.pg.PoolHandle(), migrations.FS, e.logger)
		},
	}
}

func staffCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "staff", Short: "Manage staff accounts"}
	cmd.AddCommand(staffCreateCmd())
	return cmd
}

type staffCreateOptions struct {
	tenantID string
	branchID string
	name     string
	email    string
	role     string
}

func (o staffCreateOptions) validate() (domain.StaffRole, error) {
	if o.tenantID == "" || o.name == "" || o.email == "" {
		return "", errors.New("--tenant, --name and --email are required")
	}
	role := domain.StaffRole(strings.ToUpper(o.role))
	switch role {
	case domain.StaffRoleOwner, domain.StaffRoleAdmin, domain.StaffRoleManager, domain.StaffRoleFrontDesk:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", o.role)
}

func staffCreateCmd() *cobra.Command {
	var opts staffCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff member; the password is read from " + passwordEnv,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, err := opts.validate()
			if err != nil {
				return err
			}
			password := os.Getenv(passwordEnv)
			if password == "" {
				return fmt.Errorf("%s must be set", passwordEnv)
			}

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			hash, err := auth.HashPassword(password, e.cfg.Auth.BcryptCost)
			if err != nil {
				return err
			}
			staff := &domain.StaffMember{
				TenantID:     opts.tenantID,
				Name:         opts.name,
				Email:        strings.ToLower(strings.TrimSpace(opts.email)),
				PasswordHash: hash,
				Role:         role,
				Active:       true,
			}
			if opts.branchID != "" {
				staff.BranchID = &opts.branchID
			}
			if err := e.store.Repos().Staff.Create(cmd.Context(), staff); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return fmt.Errorf("a staff member with email %s already exists", staff.Email)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", staff.Role, staff.Email, staff.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&opts.branchID, "branch", "", "restrict the account to one branch")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.email, "email", "", "login email")
	cmd.Flags().StringVar(&opts.role, "role", string(domain.StaffRoleOwner), "OWNER, ADMIN, MANAGER or FRONT_DESK")
	return cmd
}

func terminalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "terminal", Short: "Provision card readers"}
	cmd.AddCommand(terminalCreateCmd(), terminalRotateCmd())
	return cmd
}

func terminalAdmin(e *env) *service.TerminalAdminService {
	repos := e.store.Repos()
	return service.NewTerminalAdminService(service.TerminalAdminDependencies{
		TerminalRepo: repos.Terminals,
		BranchRepo:   repos.Branches,
		Hasher:       auth.NewBcryptHasher(e.cfg.Auth.BcryptCost),
		Logger:       e.logger,
	})
}

// operator acts with tenant-wide owner rights on the branch's tenant.
func operator(ctx context.Context, e *env, branchID string) (*domain.StaffMember, error) {
	branch, err := e.store.Repos().Branches.GetByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("branch %s not found", branchID)
		}
		return nil, err
	}
	return &domain.StaffMember{ID: "access-admin", TenantID: branch.TenantID, Role: domain.StaffRoleOwner, Active: true}, nil
}

func printProvisioned(w io.Writer, p *service.ProvisionedTerminal) {
	fmt.Fprintf(w, "terminal_id: %s\nbranch_id:   %s\nsecret:      %s\n", p.Terminal.ID, p.Terminal.BranchID, p.Secret)
	fmt.Fprintln(w, "the secret is shown once; configure it on the reader now")
}

func terminalCreateCmd() *cobra.Command {
	var branchID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a terminal and print its secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if branchID == "" || name == "" {
				return errors.New("--branch and --name are required")
			}
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			actor, err := operator(cmd.Context(), e, branchID)
			if err != nil {
				return err
			}
			provisioned, err := terminalAdmin(e).Create(cmd.Context(), actor, service.TerminalCreateInput{BranchID: branchID, Name: name})
			if err != nil {
				return err
			}
			printProvisioned(cmd.OutOrStdout(), provisioned)
			return nil
		},
	}
	cmd.Flags().StringVar(&branchID, "branch", "", "branch id")
	cmd.Flags().StringVar(&name, "name", "", "terminal name")
	return cmd
}

func terminalRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate-secret <terminal-id>",
		Short: "Issue a new secret; the old one stops working once caches expire",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			terminal, err := e.store.Repos().Terminals.GetByID(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("terminal %s not found", args[0])
				}
				return err
			}
			actor, err := operator(cmd.Context(), e, terminal.BranchID)
			if err != nil {
				return err
			}
			provisioned, err := terminalAdmin(e).RotateSecret(cmd.Context(), actor, terminal.ID)
			if err != nil {
				return err
			}
			printProvisioned(cmd.OutOrStdout(), provisioned)
			return nil
		},
	}
	return cmd
}

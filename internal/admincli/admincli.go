// Package admincli реализует команды администрирования платформы:
// миграции схемы, создание супер-администратора, сброс пароля и вывод каталога планов.
package admincli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/schoolhub/internal/lib/password"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/plans"
)

const minPasswordLen = 8

// Store операции с пользователями, нужные командам.
type Store interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// Migrator управление версией схемы.
type Migrator interface {
	Up() error
	Down(steps int) error
	Version() (version uint, dirty bool, err error)
}

// Backend открытые ресурсы команды. Close освобождает их.
type Backend struct {
	Store    Store
	Migrator Migrator
	Close    func() error
}

// Opener открывает Backend по пути к конфигу.
type Opener func(ctx context.Context, configPath string) (*Backend, error)

// PasswordReader читает пароль из терминала без эха.
type PasswordReader func(fd int) ([]byte, error)

type cli struct {
	open         Opener
	readPassword PasswordReader
	configPath   string
}

// NewRootCmd создаёт корневую команду schoolhub-admin.
func NewRootCmd(open Opener, readPassword PasswordReader) *cobra.Command {
	c := &cli{open: open, readPassword: readPassword}

	root := &cobra.Command{
		Use:           "schoolhub-admin",
		Short:         "SchoolHub administration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config file")

	root.AddCommand(c.migrateCmd(), c.createSuperAdminCmd(), c.resetPasswordCmd(), plansCmd())
	return root
}

func (c *cli) withBackend(cmd *cobra.Command, fn func(b *Backend) error) error {
	if c.configPath == "" {
		return errors.New("config path is not set: use --config or CONFIG_PATH")
	}
	b, err := c.open(cmd.Context(), c.configPath)
	if err != nil {
		return err
	}
	defer func() {
		if b.Close != nil {
			_ = b.Close()
		}
	}()
	return fn(b)
}

func (c *cli) migrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Manage database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(b *Backend) error {
				out := cmd.OutOrStdout()
				switch args[0] {
				case "up":
					if err := b.Migrator.Up(); err != nil {
						return err
					}
					fmt.Fprintln(out, "migrations applied")
				case "down":
					if steps < 1 {
						return errors.New("--steps must be positive")
					}
					if err := b.Migrator.Down(steps); err != nil {
						return err
					}
					fmt.Fprintf(out, "rolled back %d migration(s)\n", steps)
				case "version":
					v, dirty, err := b.Migrator.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "version %d dirty=%t\n", v, dirty)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func (c *cli) createSuperAdminCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-superadmin",
		Short: "Create a super admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			pwd, err := c.promptPassword(cmd)
			if err != nil {
				return err
			}
			return c.withBackend(cmd, func(b *Backend) error {
				taken, err := b.Store.EmailTaken(cmd.Context(), email)
				if err != nil {
					return err
				}
				if taken {
					return fmt.Errorf("email %s already registered", email)
				}
				hash, err := password.GetHash(pwd)
				if err != nil {
					return err
				}
				u := &models.User{
					Email:        email,
					Name:         name,
					PasswordHash: hash,
					Role:         models.RoleSuperAdmin,
					Status:       models.UserStatusActive,
				}
				if err := b.Store.CreateUser(cmd.Context(), u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "super admin %s created (id %s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "Super Admin", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password for an existing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := c.promptPassword(cmd)
			if err != nil {
				return err
			}
			return c.withBackend(cmd, func(b *Backend) error {
				u, err := b.Store.GetUserByEmail(cmd.Context(), strings.TrimSpace(email))
				if err != nil {
					return fmt.Errorf("user %s: %w", email, err)
				}
				hash, err := password.GetHash(pwd)
				if err != nil {
					return err
				}
				if err := b.Store.UpdatePassword(cmd.Context(), u.ID, hash); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", u.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// promptPassword спрашивает пароль дважды.
func (c *cli) promptPassword(cmd *cobra.Command) (string, error) {
	out := cmd.ErrOrStderr()
	read := func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		b, err := c.readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		return string(b), err
	}

	pwd, err := read("Enter password: ")
	if err != nil {
		return "", err
	}
	if len(pwd) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	confirm, err := read("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pwd != confirm {
		return "", errors.New("passwords do not match")
	}
	return pwd, nil
}

func plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printPlans(cmd.OutOrStdout())
		},
	}
}

func printPlans(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMONTHLY\tYEARLY\tLIMITS\tFEATURES")
	for _, p := range plans.All() {
		limits := make([]string, 0, len(p.Limits))
		for k, v := range p.Limits {
			limits = append(limits, fmt.Sprintf("%s=%d", k, v))
		}
		slices.Sort(limits)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.Name,
			cents(p.Prices[plans.CycleMonthly]),
			cents(p.Prices[plans.CycleYearly]),
			strings.Join(limits, ","),
			strings.Join(p.Features, ","),
		)
	}
	return tw.Flush()
}

func cents(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}

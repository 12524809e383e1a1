package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/membership"
	"schoollib/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), cmd.ErrOrStderr(), "text")
			if err != nil {
				return err
			}
			defer a.Close()

			if err := store.Migrate(cmd.Context(), a.db, a.logger); err != nil {
				return err
			}
			version, err := store.SchemaVersion(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newCreateAdminCmd() *cobra.Command {
	var candidate membership.NewUser
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			candidate.Role = auth.RoleAdmin
			if candidate.FullName == "" {
				candidate.FullName = candidate.Username
			}
			if candidate.Password == "" {
				pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				candidate.Password = pw
			}

			a, err := bootstrap(cmd.Context(), cmd.ErrOrStderr(), "text")
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.services()
			if err != nil {
				return err
			}

			u, err := svc.members.CreateUser(cmd.Context(), candidate)
			if err != nil {
				return fmt.Errorf("create admin: %s", apperr.Message(err, err.Error()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&candidate.Username, "username", "", "login name")
	cmd.Flags().StringVar(&candidate.Email, "email", "", "email address")
	cmd.Flags().StringVar(&candidate.FullName, "full-name", "", "display name (defaults to the username)")
	cmd.Flags().StringVar(&candidate.Password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword prompts twice without echo on a terminal and reads a single
// line otherwise, so the command can be scripted.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(prompt, "Confirm password: ")
	second, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo accounts and books; existing entries are left alone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), cmd.ErrOrStderr(), "text")
			if err != nil {
				return err
			}
			defer a.Close()

			if err := store.Migrate(cmd.Context(), a.db, a.logger); err != nil {
				return err
			}
			svc, err := a.services()
			if err != nil {
				return err
			}
			return seed(cmd.Context(), svc, cmd.OutOrStdout())
		},
	}
}

func seed(ctx context.Context, svc *services, out io.Writer) error {
	users, books := 0, 0
	for _, u := range seedUsers {
		taken, err := svc.members.Exists(ctx, u.Username, u.Email)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		if _, err := svc.members.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		users++
	}

	for _, b := range seedBooks {
		existing, err := svc.catalog.MatchBook(ctx, deref(b.ISBN), b.Title, b.Authors[0])
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := svc.catalog.CreateBook(ctx, b); err != nil {
			return fmt.Errorf("seed book %q: %w", b.Title, err)
		}
		books++
	}

	fmt.Fprintf(out, "seeded %d users and %d books\n", users, books)
	for _, u := range seedUsers {
		fmt.Fprintf(out, "  %-10s %s / %s\n", u.Role, u.Username, u.Password)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"schoollib/internal/auth"
	"schoollib/internal/reports"
	"schoollib/internal/transfer"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import books or users from a CSV file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "books <file.csv>",
			Short: "Create books or add copies to existing ones",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runImport(cmd, args[0], func(svc transfer.Service, f *os.File) (any, error) {
					return svc.ImportBooks(cmd.Context(), f)
				})
			},
		},
		&cobra.Command{
			Use:   "users <file.csv>",
			Short: "Create accounts; existing usernames or emails are skipped",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runImport(cmd, args[0], func(svc transfer.Service, f *os.File) (any, error) {
					return svc.ImportUsers(cmd.Context(), f)
				})
			},
		},
	)
	return cmd
}

func runImport(cmd *cobra.Command, path string, fn func(transfer.Service, *os.File) (any, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := bootstrap(cmd.Context(), cmd.ErrOrStderr(), "text")
	if err != nil {
		return err
	}
	defer a.Close()
	svc, err := a.services()
	if err != nil {
		return err
	}

	result, err := fn(svc.transfer, f)
	if err != nil {
		return err
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newExportCmd() *cobra.Command {
	var (
		category string
		role     string
		status   string
	)
	cmd := &cobra.Command{
		Use:       "export {books|users|loans}",
		Short:     "Write books, users or loans as CSV to stdout",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(transfer.KindBooks), string(transfer.KindUsers), string(transfer.KindLoans)},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), cmd.ErrOrStderr(), "text")
			if err != nil {
				return err
			}
			defer a.Close()
			svc, err := a.services()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch transfer.Kind(args[0]) {
			case transfer.KindBooks:
				return svc.transfer.ExportBooks(cmd.Context(), out, optional(category))
			case transfer.KindUsers:
				var r *auth.Role
				if role != "" {
					v := auth.Role(role)
					if !v.Valid() {
						return fmt.Errorf("invalid role %q", role)
					}
					r = &v
				}
				return svc.transfer.ExportUsers(cmd.Context(), out, r)
			default:
				return svc.transfer.ExportLoans(cmd.Context(), out, reports.LoanFilter{Status: optional(status)})
			}
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "books: only this category")
	cmd.Flags().StringVar(&role, "role", "", "users: only this role")
	cmd.Flags().StringVar(&status, "status", "", "loans: only this status")
	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

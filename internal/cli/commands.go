package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"authflow/internal/apperr"
	"authflow/internal/auth"
)

// passwordStdin is the --password-stdin switch that keeps secrets out of
// shell history and the process list.
const passwordStdin = "password-stdin"

func bindPassword(cmd *cobra.Command, dst *string, fromStdin *bool, usage string) {
	cmd.Flags().StringVar(dst, "password", "", usage+" (prefer --"+passwordStdin+")")
	cmd.Flags().BoolVar(fromStdin, passwordStdin, false, "read the "+usage+" from the first line of stdin")
	cmd.MarkFlagsMutuallyExclusive("password", passwordStdin)
}

// readPasswords fills dst from consecutive stdin lines. Missing lines after
// the first repeat the first one.
func readPasswords(r io.Reader, dst ...*string) error {
	sc := bufio.NewScanner(r)
	for i, p := range dst {
		if sc.Scan() {
			*p = strings.TrimSuffix(sc.Text(), "\r")
			continue
		}
		if err := sc.Err(); err != nil {
			return apperr.Wrap(err, "read password from stdin")
		}
		if i == 0 {
			return apperr.New(apperr.CodeValidation, "no password on stdin", apperr.Internal(),
				apperr.WithData(&apperr.ValidationDetail{Fields: []apperr.FieldViolation{{Property: "password", Expected: "password"}}}))
		}
		*p = *dst[0]
	}
	return nil
}

type signUpFlags struct {
	req   auth.SignUpRequest
	stdin bool
}

func (f *signUpFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.req.Name, "name", "", "first name")
	cmd.Flags().StringVar(&f.req.Surname, "surname", "", "last name")
	cmd.Flags().StringVar(&f.req.Email, "email", "", "email address")
	bindPassword(cmd, &f.req.Password, &f.stdin, "password")
}

func (f *signUpFlags) resolve(cmd *cobra.Command) error {
	if !f.stdin {
		return nil
	}
	return readPasswords(cmd.InOrStdin(), &f.req.Password)
}

func (a *App) signUpCmd() *cobra.Command {
	var f signUpFlags
	cmd := &cobra.Command{
		Use:   "sign-up",
		Short: "Create an account and print its session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if err := f.resolve(cmd); err != nil {
					return err
				}
				resp, err := a.client.SignUp(ctx, f.req)
				if err != nil {
					return err
				}
				return a.printToken(resp)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *App) validateCmd() *cobra.Command {
	var f signUpFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check sign-up data without creating the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if err := f.resolve(cmd); err != nil {
					return err
				}
				resp, err := a.client.ValidateSignUp(ctx, f.req)
				if err != nil {
					return err
				}
				return a.printToken(resp)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *App) signInCmd() *cobra.Command {
	var (
		req   auth.SignInRequest
		stdin bool
	)
	cmd := &cobra.Command{
		Use:   "sign-in",
		Short: "Sign in and print the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if stdin {
					if err := readPasswords(cmd.InOrStdin(), &req.Password); err != nil {
						return err
					}
				}
				resp, err := a.client.SignIn(ctx, req)
				if err != nil {
					return err
				}
				return a.printToken(resp)
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	bindPassword(cmd, &req.Password, &stdin, "password")
	return cmd
}

func (a *App) socialCmd() *cobra.Command {
	var req auth.SocialRequest
	cmd := &cobra.Command{
		Use:   "social",
		Short: "Sign in with a social provider token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				resp, err := a.client.Social(ctx, req)
				if err != nil {
					return err
				}
				return a.printToken(resp)
			})
		},
	}
	cmd.Flags().StringVar(&req.FirebaseToken, "firebase-token", "", "token issued by the identity provider")
	return cmd
}

func (a *App) passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset a forgotten password",
	}

	var reset auth.PasswordResetRequest
	request := &cobra.Command{
		Use:   "request",
		Short: "Send a password reset token to an email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if err := a.client.RequestPasswordReset(ctx, reset); err != nil {
					return err
				}
				_, err := fmt.Fprintln(a.out, "If the account exists, a reset link is on its way.")
				return err
			})
		},
	}
	request.Flags().StringVar(&reset.Email, "email", "", "email address")

	var (
		change      auth.PasswordChangeRequest
		changeStdin bool
	)
	changeCmd := &cobra.Command{
		Use:   "change",
		Short: "Set a new password with a reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if changeStdin {
					dst := []*string{&change.Password}
					if !cmd.Flags().Changed("repeat-password") {
						dst = append(dst, &change.RepeatPassword)
					}
					if err := readPasswords(cmd.InOrStdin(), dst...); err != nil {
						return err
					}
				}
				if err := a.client.ChangePassword(ctx, change); err != nil {
					return err
				}
				_, err := fmt.Fprintln(a.out, "Password changed.")
				return err
			})
		},
	}
	changeCmd.Flags().StringVar(&change.Token, "token", "", "reset token")
	bindPassword(changeCmd, &change.Password, &changeStdin, "new password")
	changeCmd.Flags().StringVar(&change.RepeatPassword, "repeat-password", "", "new password again")

	cmd.AddCommand(request, changeCmd)
	return cmd
}

func (a *App) printToken(resp auth.TokenResponse) error {
	_, err := fmt.Fprintln(a.out, resp.Token)
	return err
}

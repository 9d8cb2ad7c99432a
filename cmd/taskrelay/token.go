package main

import (
	"errors"
	"fmt"

	"github.com/phrazzld/taskrelay/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(opts))
	return cmd
}

func newTokenIssueCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		scopes  []string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("no JWT secret configured: set auth.jwt_secret or TASKRELAY_AUTH_JWT_SECRET")
			}

			tokens, err := auth.NewTokenService(cfg.Auth)
			if err != nil {
				return err
			}

			token, err := tokens.Issue(cmd.Context(), subject, scopes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, used as the rate limit key")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "granted scope, repeatable (default all scopes)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

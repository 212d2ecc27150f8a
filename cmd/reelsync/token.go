package main

import (
	"fmt"
	"time"

	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/spf13/cobra"
)

var (
	tokenActor    string
	tokenProjects []string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}

		token, err := auth.Issue(cfg.Auth.JWTSecret, cfg.Auth.Issuer, tokenActor, tokenProjects, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "actor id to put in the token subject")
	tokenCmd.Flags().StringSliceVar(&tokenProjects, "project", nil, "project the token may access (repeatable; none means all)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("actor")
}

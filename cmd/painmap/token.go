package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/pain-assessment/internal/config"
	"github.com/jonathan/pain-assessment/internal/server"
)

var (
	tokenSubject string
	tokenHours   int
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a clinician token for the records API",
	Long:  `Sign a bearer token with ADMIN_JWT_SECRET for the records API under /api/assessments and /api/patients.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Clinician name or id (required)")
	tokenCmd.Flags().IntVar(&tokenHours, "hours", 0, "Token lifetime in hours (default $JWT_EXPIRATION_HOURS or 24)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}
	if tokenHours < 0 {
		return fmt.Errorf("--hours must be positive")
	}
	if tokenHours > 0 {
		jwtCfg.ExpirationHours = tokenHours
	}

	svc := server.NewJWTService(jwtCfg)
	token, err := svc.GenerateTokenFor(tokenSubject, time.Duration(jwtCfg.ExpirationHours)*time.Hour)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

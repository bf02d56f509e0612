package main

import (
	"fmt"
	"time"

	"github.com/avatarctic/realtime-core/internal/application/services"
	"github.com/avatarctic/realtime-core/internal/core/domain/conversation"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue gateway tokens for local testing",
	}

	var (
		participantType string
		participantID   string
		ttl             time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a participant token with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokens, err := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
			if err != nil {
				return err
			}
			p := conversation.Participant{ID: participantID, Type: conversation.ParticipantType(participantType)}
			token, err := tokens.IssueToken(p, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&participantType, "type", "", "Participant type: coach/client/admin")
	issue.Flags().StringVar(&participantID, "id", "", "Participant id")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_TOKEN_TTL)")
	_ = issue.MarkFlagRequired("type")
	_ = issue.MarkFlagRequired("id")
	cmd.AddCommand(issue)

	return cmd
}

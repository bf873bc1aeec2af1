/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/resolveit/apiserver/config"
	"github.com/resolveit/apiserver/internal/mq"
	"github.com/resolveit/apiserver/internal/notify"
	"github.com/resolveit/apiserver/internal/storage"
	"github.com/spf13/cobra"
)

// mailerCmd represents the mailer command
var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Send queued email over SMTP",
	Long: `Consumes the mail queue filled by the API server when
MAIL_TRANSPORT=queue, sends each message over SMTP and, when
STORAGE_BACKEND is set, archives it to object storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)
		ctx := cmd.Context()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer queue.Close()

		smtp, err := notify.NewSMTPNotifier(cfg.Mail)
		if err != nil {
			return fmt.Errorf("configure smtp: %w", err)
		}

		archive, err := storage.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open mail archive: %w", err)
		}

		worker := notify.NewWorker(queue, cfg.Mail.Channel, smtp, archive, logger)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// mailerShowCmd represents the mailer show command
var mailerShowCmd = &cobra.Command{
	Use:   "show <message-id>",
	Short: "Print an archived email",
	Long: `Reads back the email the mailer archived for a queue message id
and prints it as JSON. Requires STORAGE_BACKEND.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		ctx := cmd.Context()

		archive, err := storage.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open mail archive: %w", err)
		}

		email, err := notify.LoadArchived(ctx, archive, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(email)
	},
}

func init() {
	mailerCmd.AddCommand(mailerShowCmd)
	rootCmd.AddCommand(mailerCmd)
}

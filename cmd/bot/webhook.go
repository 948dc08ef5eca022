package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/server"
	"github.com/bezpauzy/eva-bot/internal/telegram"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}

	var (
		webhookURL  string
		dropPending bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Register the webhook URL with Telegram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, api, err := botAPI()
			if err != nil {
				return err
			}
			target := webhookTarget(webhookURL, cfg.Telegram.WebhookURL)
			if target == "" {
				return errors.New("webhook url is required (--url or TELEGRAM_WEBHOOK_URL)")
			}
			params := tgbotapi.Params{}
			params["url"] = target
			params.AddNonEmpty("secret_token", cfg.Telegram.WebhookSecret)
			params.AddBool("drop_pending_updates", dropPending)
			if _, err := api.MakeRequest("setWebhook", params); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", target)
			return nil
		},
	}
	set.Flags().StringVar(&webhookURL, "url", "", "public base URL or full webhook URL")
	set.Flags().BoolVar(&dropPending, "drop-pending", false, "drop updates queued while no webhook was set")

	info := &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, api, err := botAPI()
			if err != nil {
				return err
			}
			wi, err := api.GetWebhookInfo()
			if err != nil {
				return fmt.Errorf("get webhook info: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "url: %s\n", wi.URL)
			fmt.Fprintf(out, "pending updates: %d\n", wi.PendingUpdateCount)
			if wi.LastErrorDate > 0 {
				at := time.Unix(int64(wi.LastErrorDate), 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "last error: %s (%s)\n", wi.LastErrorMessage, at)
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can long-poll",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, api, err := botAPI()
			if err != nil {
				return err
			}
			if _, err := api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
				return fmt.Errorf("delete webhook: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
	del.Flags().BoolVar(&dropPending, "drop-pending", false, "drop updates that are still queued")

	cmd.AddCommand(set, info, del)
	return cmd
}

func botAPI() (config.Config, *tgbotapi.BotAPI, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	api, err := telegram.NewAPI(cfg.Telegram, nil)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("telegram: %w", err)
	}
	if api == nil {
		return config.Config{}, nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	return cfg, api, nil
}

// webhookTarget appends the webhook path unless raw already points at it.
func webhookTarget(flag, fromEnv string) string {
	raw := strings.TrimSpace(flag)
	if raw == "" {
		raw = strings.TrimSpace(fromEnv)
	}
	if raw == "" {
		return ""
	}
	raw = strings.TrimRight(raw, "/")
	if strings.HasSuffix(raw, server.WebhookPath) {
		return raw
	}
	return raw + server.WebhookPath
}

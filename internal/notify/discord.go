// Package notify announces level-ups on a Discord channel through a webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"cafe/internal/game"
)

const sendTimeout = 10 * time.Second

var markdown = strings.NewReplacer("*", `\*`, "_", `\_`, "~", `\~`, "`", "\\`", "|", `\|`)

// Discord posts to one webhook. Sends run in the background so a slow Discord
// never holds up the request that triggered them; Close waits for them.
type Discord struct {
	game.NopEvents

	session *discordgo.Session
	id      string
	token   string
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewDiscord parses a https://discord.com/api/webhooks/<id>/<token> URL.
// client may be nil.
func NewDiscord(webhookURL string, client *http.Client, logger *slog.Logger) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if client != nil {
		session.Client = client
	}
	session.MaxRestRetries = 1
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{session: session, id: id, token: token, log: logger}, nil
}

// Events returns a Discord notifier for webhookURL, or a no-op when it is empty.
func Events(webhookURL string, logger *slog.Logger) (game.Events, func(), error) {
	if strings.TrimSpace(webhookURL) == "" {
		return game.NopEvents{}, func() {}, nil
	}
	d, err := NewDiscord(webhookURL, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return d, d.Close, nil
}

func (d *Discord) LevelUp(ctx context.Context, username string, level int) {
	content := fmt.Sprintf("☕ **%s** a atteint le niveau %d !", markdown.Replace(username), level)
	if level >= game.MaxLevel() {
		content += " Niveau maximum."
	}
	d.send(context.WithoutCancel(ctx), content)
}

func (d *Discord) send(ctx context.Context, content string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		_, err := d.session.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
			Content:  content,
			Username: "Café",
		}, discordgo.WithContext(ctx))
		if err != nil {
			d.log.Warn("discord notification failed", "err", err)
		}
	}()
}

func (d *Discord) Close() {
	d.wg.Wait()
}

func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("webhook url has no /webhooks/<id>/<token> path")
}

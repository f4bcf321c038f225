// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/models"
)

// DiscordAgent posts an embed to a Discord webhook.
type DiscordAgent struct {
	client *http.Client
}

// NewDiscordAgent creates a Discord agent.
func NewDiscordAgent() *DiscordAgent {
	return &DiscordAgent{client: newHTTPClient()}
}

// DiscordWebhookPayload represents the Discord webhook message structure.
type DiscordWebhookPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Content   string         `json:"content,omitempty"`
	Embeds    []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed object.
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
}

// DiscordEmbedFooter represents the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed.
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

const discordBlurple = 0x5865F2

var actionColors = map[models.ActionKind]int{
	models.ActionPlay:              0x2ECC71,
	models.ActionStop:              0x95A5A6,
	models.ActionPause:             0xF1C40F,
	models.ActionResume:            0x2ECC71,
	models.ActionBuffer:            0xE67E22,
	models.ActionWatched:           0x3498DB,
	models.ActionConcurrentStreams: 0xE74C3C,
	models.ActionNewDevice:         0x9B59B6,
	models.ActionError:             0xE74C3C,
}

// discordDescriptionLimit is Discord's embed description limit.
const discordDescriptionLimit = 4096

// Deliver sends one action as a Discord embed.
func (d *DiscordAgent) Deliver(ctx context.Context, cfg config.NotifierConfig, a models.NotifyAction) error {
	msg, err := RenderMessage(cfg.Body, a)
	if err != nil {
		return err
	}
	body, err := json.Marshal(buildDiscordPayload(cfg, a, msg))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return postJSON(ctx, d.client, cfg.URL, cfg.Headers, body)
}

func buildDiscordPayload(cfg config.NotifierConfig, a models.NotifyAction, msg string) DiscordWebhookPayload {
	username := cfg.Username
	if username == "" {
		username = "Playwatch"
	}
	if len(msg) > discordDescriptionLimit {
		msg = msg[:discordDescriptionLimit-3] + "..."
	}
	color, ok := actionColors[a.Kind]
	if !ok {
		color = discordBlurple
	}

	embed := DiscordEmbed{
		Title:       a.Session.Media.FullTitle(),
		Description: msg,
		Color:       color,
		Timestamp:   a.At.UTC().Format(time.RFC3339),
		Footer:      &DiscordEmbedFooter{Text: string(a.Kind)},
	}
	if a.Params.User != "" {
		embed.Fields = append(embed.Fields, DiscordEmbedField{Name: "User", Value: a.Params.User, Inline: true})
	}
	if a.Params.Player != "" {
		embed.Fields = append(embed.Fields, DiscordEmbedField{Name: "Player", Value: a.Params.Player, Inline: true})
	}
	if a.Params.TranscodeDecision != "" {
		embed.Fields = append(embed.Fields, DiscordEmbedField{Name: "Stream", Value: a.Params.TranscodeDecision, Inline: true})
	}
	if a.Params.Duration > 0 {
		embed.Fields = append(embed.Fields, DiscordEmbedField{
			Name:   "Progress",
			Value:  strconv.FormatFloat(a.Params.ProgressPercent, 'f', 1, 64) + "%",
			Inline: true,
		})
	}

	return DiscordWebhookPayload{Username: username, Embeds: []DiscordEmbed{embed}}
}

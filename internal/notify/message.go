// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/tomtom215/playwatch/internal/models"
)

// defaultBodies is used when a notifier has no body template.
var defaultBodies = map[models.ActionKind]string{
	models.ActionPlay:                    `{{.Params.User}} started playing {{title .}} on {{.Params.Player}}`,
	models.ActionStop:                    `{{.Params.User}} stopped {{title .}} at {{percent .Params.ProgressPercent}}`,
	models.ActionPause:                   `{{.Params.User}} paused {{title .}} at {{percent .Params.ProgressPercent}}`,
	models.ActionResume:                  `{{.Params.User}} resumed {{title .}}`,
	models.ActionBuffer:                  `{{.Params.User}} is buffering {{title .}} on {{.Params.Player}} ({{.Params.BufferCount}} times)`,
	models.ActionWatched:                 `{{.Params.User}} watched {{title .}}`,
	models.ActionTranscodeDecisionChange: `{{.Params.User}} switched to {{.Params.TranscodeDecision}} for {{title .}}`,
	models.ActionConcurrentStreams:       `{{.Params.User}} has {{.Params.UserStreams}} concurrent streams`,
	models.ActionNewDevice:               `{{.Params.User}} is streaming from a new device: {{.Params.Player}} ({{.Params.Platform}})`,
	models.ActionError:                   `Playback error for {{.Params.User}} on {{title .}}: {{.Params.Reason}}`,
}

var templateFuncs = template.FuncMap{
	"title": func(a models.NotifyAction) string {
		if t := a.Session.Media.FullTitle(); t != "" {
			return t
		}
		return a.Params.RatingKey
	},
	"percent": func(p float64) string { return fmt.Sprintf("%.0f%%", p) },
	"upper":   strings.ToUpper,
	"lower":   strings.ToLower,
}

var templates sync.Map // source -> *template.Template

// ParseBody compiles a body template so configuration errors surface at startup.
func ParseBody(src string) (*template.Template, error) {
	if t, ok := templates.Load(src); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("body").Funcs(templateFuncs).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	templates.Store(src, t)
	return t, nil
}

// RenderMessage renders the notifier body, or the default for the action kind.
func RenderMessage(body string, a models.NotifyAction) (string, error) {
	if body == "" {
		body = defaultBodies[a.Kind]
		if body == "" {
			body = `{{.Kind}}: {{title .}}`
		}
	}
	t, err := ParseBody(body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, a); err != nil {
		return "", fmt.Errorf("render body template: %w", err)
	}
	return b.String(), nil
}

// RenderSubject renders a subject template such as "playwatch.{{.Kind}}".
func RenderSubject(subject string, a models.NotifyAction) (string, error) {
	if !strings.Contains(subject, "{{") {
		return subject, nil
	}
	return RenderMessage(subject, a)
}

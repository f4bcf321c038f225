// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package eventprocessor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/playwatch/internal/models"
)

// messageNamespace seeds the name-based UUIDs used as Nats-Msg-Id, so a
// republished transition or action deduplicates inside the stream window.
var messageNamespace = uuid.MustParse("0b6f5c1e-3d0a-4f53-9a8c-5e7d2b41c9aa")

// TransitionSubject returns the mirror subject for a transition kind.
func TransitionSubject(kind models.TransitionKind) string {
	return TransitionSubjectPrefix + string(kind)
}

// ValidateSubject rejects subjects a publisher cannot use: empty tokens,
// whitespace and wildcards.
func ValidateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSubject)
	}
	if strings.ContainsAny(subject, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidSubject, subject)
	}
	for _, tok := range strings.Split(subject, ".") {
		switch tok {
		case "":
			return fmt.Errorf("%w: %q has an empty token", ErrInvalidSubject, subject)
		case "*", ">":
			return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidSubject, subject)
		}
	}
	return nil
}

func messageID(parts ...string) string {
	return uuid.NewSHA1(messageNamespace, []byte(strings.Join(parts, "|"))).String()
}

// NewTransitionMessage encodes a transition for the mirror subject.
func NewTransitionMessage(t models.SessionTransition) (*message.Message, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal transition: %w", err)
	}

	id := messageID("transition", t.Session.InstanceID, string(t.Kind), strconv.FormatInt(t.At.UnixNano(), 10))
	msg := message.NewMessage(id, data)
	msg.Metadata.Set("session_key", t.Session.SessionKey)
	msg.Metadata.Set("instance_id", t.Session.InstanceID)
	msg.Metadata.Set("kind", string(t.Kind))
	msg.Metadata.Set("user_id", strconv.Itoa(t.Session.UserID))
	if t.Synthetic {
		msg.Metadata.Set("reason", t.Reason)
	}
	return msg, nil
}

// NewActionMessage encodes a notification action for the bus agent.
func NewActionMessage(a models.NotifyAction) (*message.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	id := messageID("action", a.Session.InstanceID, string(a.Kind), strconv.FormatInt(a.At.UnixNano(), 10))
	msg := message.NewMessage(id, data)
	msg.Metadata.Set("action", string(a.Kind))
	msg.Metadata.Set("session_key", a.Session.SessionKey)
	msg.Metadata.Set("user_id", strconv.Itoa(a.Session.UserID))
	return msg, nil
}

// DecodeTransition decodes a mirror payload. Active is never carried.
func DecodeTransition(data []byte) (models.SessionTransition, error) {
	var t models.SessionTransition
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("unmarshal transition: %w", err)
	}
	return t, nil
}

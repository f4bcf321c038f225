// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package models

// Plex Media Server wire types. Only the fields Playwatch reads are declared.

// PlexSessionsResponse is the body of GET /status/sessions.
type PlexSessionsResponse struct {
	MediaContainer PlexSessionsContainer `json:"MediaContainer"`
}

// PlexSessionsContainer wraps the active sessions array.
type PlexSessionsContainer struct {
	Size     int           `json:"size"`
	Metadata []PlexSession `json:"Metadata"`
}

// PlexSession is one active playback as reported by /status/sessions.
type PlexSession struct {
	SessionKey           string `json:"sessionKey"`
	Key                  string `json:"key"`
	RatingKey            string `json:"ratingKey"`
	ParentRatingKey      string `json:"parentRatingKey,omitempty"`
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"`
	LibrarySectionID     string `json:"librarySectionID,omitempty"`
	Type                 string `json:"type"` // movie, episode, track
	Title                string `json:"title"`
	ParentTitle          string `json:"parentTitle,omitempty"`
	GrandparentTitle     string `json:"grandparentTitle,omitempty"`
	Year                 int    `json:"year,omitempty"`
	ViewOffset           int64  `json:"viewOffset"`
	Duration             int64  `json:"duration"`

	User             *PlexSessionUser      `json:"User,omitempty"`
	Player           *PlexSessionPlayer    `json:"Player,omitempty"`
	Session          *PlexSessionInfo      `json:"Session,omitempty"`
	TranscodeSession *PlexTranscodeSession `json:"TranscodeSession,omitempty"` // nil on direct play
	Media            []PlexMedia           `json:"Media,omitempty"`
}

// PlexSessionUser identifies the account watching.
type PlexSessionUser struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PlexSessionPlayer describes the client device.
type PlexSessionPlayer struct {
	Address   string `json:"address"`
	Device    string `json:"device"`
	MachineID string `json:"machineIdentifier"`
	Platform  string `json:"platform"`
	Product   string `json:"product"`
	State     string `json:"state"` // playing, paused, buffering
	Title     string `json:"title"`
	Local     bool   `json:"local"`
}

// PlexSessionInfo carries the per-connection session id.
type PlexSessionInfo struct {
	ID       string `json:"id"`
	Location string `json:"location"` // lan, wan
}

// PlexTranscodeSession is present only while the server is transcoding or remuxing.
type PlexTranscodeSession struct {
	Key           string `json:"key"`
	VideoDecision string `json:"videoDecision"` // transcode, copy, direct play
	AudioDecision string `json:"audioDecision"`
	Container     string `json:"container"`
	VideoCodec    string `json:"videoCodec"`
	AudioCodec    string `json:"audioCodec"`
}

// PlexMedia is the source media version being played.
type PlexMedia struct {
	Bitrate         int    `json:"bitrate"`
	Container       string `json:"container"`
	VideoCodec      string `json:"videoCodec"`
	AudioCodec      string `json:"audioCodec"`
	VideoResolution string `json:"videoResolution"`
}

// PlexNotificationWrapper is the envelope of every websocket message.
type PlexNotificationWrapper struct {
	NotificationContainer PlexNotificationContainer `json:"NotificationContainer"`
}

// PlexNotificationContainer holds one notification batch. Playwatch only
// consumes "playing" batches.
type PlexNotificationContainer struct {
	Type                         string                    `json:"type"`
	Size                         int                       `json:"size,omitempty"`
	PlaySessionStateNotification []PlexPlayingNotification `json:"PlaySessionStateNotification,omitempty"`
}

// PlexPlayingNotification is a real-time playback state change.
type PlexPlayingNotification struct {
	SessionKey       string `json:"sessionKey"`
	ClientIdentifier string `json:"clientIdentifier"`
	State            string `json:"state"` // playing, paused, buffering, stopped
	RatingKey        string `json:"ratingKey"`
	ViewOffset       int64  `json:"viewOffset"`
	Key              string `json:"key,omitempty"`
	TranscodeSession string `json:"transcodeSession,omitempty"`
}

// PlexMetadataResponse is the body of GET /library/metadata/{ratingKey}.
type PlexMetadataResponse struct {
	MediaContainer struct {
		Size     int            `json:"size"`
		Metadata []PlexMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// PlexMetadata is a library item.
type PlexMetadata struct {
	RatingKey            string `json:"ratingKey"`
	ParentRatingKey      string `json:"parentRatingKey,omitempty"`
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"`
	LibrarySectionID     int    `json:"librarySectionID,omitempty"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	ParentTitle          string `json:"parentTitle,omitempty"`
	GrandparentTitle     string `json:"grandparentTitle,omitempty"`
	Year                 int    `json:"year,omitempty"`
	Duration             int64  `json:"duration"`
}

// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"sort"

	"github.com/tomtom215/playwatch/internal/models"
)

// ParamType is the type of a condition parameter.
type ParamType int

const (
	TypeString ParamType = iota
	TypeNumber
	TypeBool
)

func (t ParamType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// value is a typed parameter value read from ActionParams.
type value struct {
	typ ParamType
	s   string
	n   float64
	b   bool
}

type paramSpec struct {
	typ ParamType
	get func(p *models.ActionParams) value
}

func str(f func(p *models.ActionParams) string) paramSpec {
	return paramSpec{typ: TypeString, get: func(p *models.ActionParams) value { return value{typ: TypeString, s: f(p)} }}
}

func num(f func(p *models.ActionParams) float64) paramSpec {
	return paramSpec{typ: TypeNumber, get: func(p *models.ActionParams) value { return value{typ: TypeNumber, n: f(p)} }}
}

func boolean(f func(p *models.ActionParams) bool) paramSpec {
	return paramSpec{typ: TypeBool, get: func(p *models.ActionParams) value { return value{typ: TypeBool, b: f(p)} }}
}

// params is the closed set of names a condition may reference.
var params = map[string]paramSpec{
	"action":             str(func(p *models.ActionParams) string { return p.Action }),
	"user":               str(func(p *models.ActionParams) string { return p.User }),
	"user_id":            num(func(p *models.ActionParams) float64 { return float64(p.UserID) }),
	"media_type":         str(func(p *models.ActionParams) string { return p.MediaType }),
	"title":              str(func(p *models.ActionParams) string { return p.Title }),
	"show_name":          str(func(p *models.ActionParams) string { return p.ShowName }),
	"library_section_id": str(func(p *models.ActionParams) string { return p.LibrarySectionID }),
	"rating_key":         str(func(p *models.ActionParams) string { return p.RatingKey }),
	"year":               num(func(p *models.ActionParams) float64 { return float64(p.Year) }),
	"state":              str(func(p *models.ActionParams) string { return p.State }),
	"progress_percent":   num(func(p *models.ActionParams) float64 { return p.ProgressPercent }),
	"view_offset":        num(func(p *models.ActionParams) float64 { return float64(p.ViewOffset) }),
	"duration":           num(func(p *models.ActionParams) float64 { return float64(p.Duration) }),
	"transcode_decision": str(func(p *models.ActionParams) string { return p.TranscodeDecision }),
	"video_resolution":   str(func(p *models.ActionParams) string { return p.VideoResolution }),
	"player":             str(func(p *models.ActionParams) string { return p.Player }),
	"platform":           str(func(p *models.ActionParams) string { return p.Platform }),
	"product":            str(func(p *models.ActionParams) string { return p.Product }),
	"machine_id":         str(func(p *models.ActionParams) string { return p.MachineID }),
	"ip_address":         str(func(p *models.ActionParams) string { return p.IPAddress }),
	"local":              boolean(func(p *models.ActionParams) bool { return p.Local }),
	"initial_stream":     boolean(func(p *models.ActionParams) bool { return p.InitialStream }),
	"user_streams":       num(func(p *models.ActionParams) float64 { return float64(p.UserStreams) }),
	"total_streams":      num(func(p *models.ActionParams) float64 { return float64(p.TotalStreams) }),
	"buffer_count":       num(func(p *models.ActionParams) float64 { return float64(p.BufferCount) }),
	"reason":             str(func(p *models.ActionParams) string { return p.Reason }),
}

// LookupParam reports the type of a parameter name.
func LookupParam(name string) (ParamType, bool) {
	spec, ok := params[name]
	return spec.typ, ok
}

// ParamNames returns every parameter name in sorted order.
func ParamNames() []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package topic parses MQTT topic strings published by field devices into
// typed topic descriptions.
//
// Four grammars are recognized:
//
//	iot/telemetry/{tenant}/{farm}/{barn}/{device}/{metric}
//	iot/event/{tenant}/{farm}/{barn}/{device}/{eventType}
//	iot/weighvision/{tenant}/{farm}/{barn}/{station}/session/{sessionId}/{eventType}
//	iot/status/{tenant}/{farm}/{barn}/{device}
//
// Anything else is unparseable and Parse returns nil.
package topic

import "strings"

// Kind identifies which grammar a topic matched.
type Kind string

const (
	KindTelemetry   Kind = "telemetry"
	KindEvent       Kind = "event"
	KindWeighVision Kind = "weighvision"
	KindStatus      Kind = "status"
)

const (
	rootSegment    = "iot"
	sessionLiteral = "session"

	telemetrySegments   = 7
	eventSegments       = 7
	weighVisionSegments = 9
	statusSegments      = 6
)

// Topic is implemented only by the types in this package: *Telemetry,
// *GenericEvent, *WeighVisionSession and *Status.
type Topic interface {
	Kind() Kind
	Tenant() string
	Farm() string
	Barn() string

	sealed()
}

// Scope holds the keys shared by every topic kind.
type Scope struct {
	TenantID string `json:"tenant_id"`
	FarmID   string `json:"farm_id"`
	BarnID   string `json:"barn_id"`
}

func (s Scope) Tenant() string { return s.TenantID }
func (s Scope) Farm() string   { return s.FarmID }
func (s Scope) Barn() string   { return s.BarnID }

// Telemetry is a sensor reading topic.
type Telemetry struct {
	Scope
	DeviceID string `json:"device_id"`
	Metric   string `json:"metric"`
}

// GenericEvent is a device event topic.
type GenericEvent struct {
	Scope
	DeviceID  string `json:"device_id"`
	EventType string `json:"event_type"`
}

// WeighVisionSession is a weigh-station session topic.
type WeighVisionSession struct {
	Scope
	StationID string `json:"station_id"`
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
}

// Status is a device heartbeat/status topic.
type Status struct {
	Scope
	DeviceID string `json:"device_id"`
}

func (*Telemetry) Kind() Kind          { return KindTelemetry }
func (*GenericEvent) Kind() Kind       { return KindEvent }
func (*WeighVisionSession) Kind() Kind { return KindWeighVision }
func (*Status) Kind() Kind             { return KindStatus }

func (*Telemetry) sealed()          {}
func (*GenericEvent) sealed()       {}
func (*WeighVisionSession) sealed() {}
func (*Status) sealed()             {}

// Parse returns the typed description of topic, or nil when topic matches
// none of the grammars. It never panics on arbitrary input.
func Parse(topic string) Topic {
	segments := split(topic)
	if len(segments) < 2 || segments[0] != rootSegment {
		return nil
	}

	switch Kind(segments[1]) {
	case KindTelemetry:
		if len(segments) != telemetrySegments {
			return nil
		}

		return &Telemetry{
			Scope:    scopeOf(segments),
			DeviceID: segments[5],
			Metric:   segments[6],
		}
	case KindEvent:
		if len(segments) != eventSegments {
			return nil
		}

		return &GenericEvent{
			Scope:     scopeOf(segments),
			DeviceID:  segments[5],
			EventType: segments[6],
		}
	case KindWeighVision:
		if len(segments) != weighVisionSegments || segments[6] != sessionLiteral {
			return nil
		}

		return &WeighVisionSession{
			Scope:     scopeOf(segments),
			StationID: segments[5],
			SessionID: segments[7],
			EventType: segments[8],
		}
	case KindStatus:
		if len(segments) != statusSegments {
			return nil
		}

		return &Status{
			Scope:    scopeOf(segments),
			DeviceID: segments[5],
		}
	default:
		return nil
	}
}

// SubscriptionPatterns returns the wildcard filters that cover every
// parseable topic.
func SubscriptionPatterns() []string {
	return []string{
		rootSegment + "/" + string(KindTelemetry) + "/#",
		rootSegment + "/" + string(KindEvent) + "/#",
		rootSegment + "/" + string(KindWeighVision) + "/#",
		rootSegment + "/" + string(KindStatus) + "/#",
	}
}

// split breaks the topic on "/" and drops empty segments, so the returned
// slice never contains "".
func split(topic string) []string {
	raw := strings.Split(topic, "/")
	segments := raw[:0]

	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}

	return segments
}

func scopeOf(segments []string) Scope {
	return Scope{
		TenantID: segments[2],
		FarmID:   segments[3],
		BarnID:   segments[4],
	}
}

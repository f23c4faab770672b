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

// Package downstream maps accepted messages to HTTP calls on the telemetry
// and weighvision services and performs those calls.
package downstream

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/barnlink/ingress/pkg/envelope"
	"github.com/barnlink/ingress/pkg/topic"
)

// Route names, used in stats counters as route.<name>.success|fail.
const (
	RouteTelemetry     = "telemetry"
	RouteSessionCreate = "weighvision.session_create"
	RouteBindWeight    = "weighvision.bind_weight"
	RouteBindMedia     = "weighvision.bind_media"
	RouteFinalize      = "weighvision.finalize"

	TelemetryReadingEvent = "telemetry.reading"

	telemetryReadingsPath = "/api/v1/telemetry/readings"
	sessionsPath          = "/api/v1/weighvision/sessions"
)

var (
	// ErrNoRoute matches every *NoRouteError.
	ErrNoRoute = errors.New("no route")
	// ErrNotForwarded is returned for topic kinds that never produce a call.
	ErrNotForwarded = errors.New("topic kind is not forwarded")
)

// NoRouteError carries the loggable reason a message has no call.
type NoRouteError struct {
	Reason string
}

func (e *NoRouteError) Error() string { return e.Reason }

func (*NoRouteError) Is(target error) bool { return target == ErrNoRoute }

func noRoute(format string, args ...interface{}) error {
	return &NoRouteError{Reason: fmt.Sprintf(format, args...)}
}

// Call is one outbound POST.
type Call struct {
	Route   string
	URL     string
	Body    interface{}
	EventID string
	TraceID string
}

// Router builds calls from accepted messages.
type Router struct {
	telemetryBase   string
	weighVisionBase string
}

// NewRouter takes the two service base URLs; trailing slashes are ignored.
func NewRouter(telemetryBaseURL, weighVisionBaseURL string) *Router {
	return &Router{
		telemetryBase:   strings.TrimRight(telemetryBaseURL, "/"),
		weighVisionBase: strings.TrimRight(weighVisionBaseURL, "/"),
	}
}

// Route returns the call for a message. Status and generic-event topics
// yield ErrNotForwarded; messages without a rule, or missing a field the
// rule needs, yield a *NoRouteError.
func (r *Router) Route(t topic.Topic, env *envelope.Envelope) (*Call, error) {
	var (
		route string
		path  string
		body  interface{}
		err   error
	)

	switch v := t.(type) {
	case *topic.Telemetry:
		route = RouteTelemetry
		path = r.telemetryBase + telemetryReadingsPath
		body, err = telemetryBody(v, env)
	case *topic.WeighVisionSession:
		route, path, body, err = r.weighVision(v, env)
	case *topic.Status, *topic.GenericEvent:
		return nil, ErrNotForwarded
	default:
		return nil, noRoute("no routing rule for topic type %T", t)
	}

	if err != nil {
		return nil, err
	}

	return &Call{
		Route:   route,
		URL:     path,
		Body:    body,
		EventID: env.EventID,
		TraceID: env.TraceID,
	}, nil
}

func telemetryBody(t *topic.Telemetry, env *envelope.Envelope) (*TelemetryReadingsRequest, error) {
	if env.EventType != TelemetryReadingEvent {
		return nil, noRoute("no routing rule for event_type %s", env.EventType)
	}

	payload, err := env.PayloadObject()
	if err != nil {
		return nil, noRoute("telemetry payload is not a JSON object")
	}

	value, ok := number(payload, "value")
	if !ok {
		return nil, noRoute("telemetry payload.value must be numeric")
	}

	reading := TelemetryReading{Metric: t.Metric, Value: value}
	if unit, ok := payload["unit"].(string); ok && unit != "" {
		reading.Unit = unit
	}

	return &TelemetryReadingsRequest{
		Events: []TelemetryEvent{{
			SchemaVersion: env.SchemaVersion,
			EventID:       env.EventID,
			TraceID:       env.TraceID,
			TenantID:      env.TenantID,
			DeviceID:      env.DeviceID,
			EventType:     env.EventType,
			TS:            env.TS,
			FarmID:        t.FarmID,
			BarnID:        t.BarnID,
			Payload:       reading,
		}},
	}, nil
}

func (r *Router) weighVision(t *topic.WeighVisionSession, env *envelope.Envelope) (string, string, interface{}, error) {
	payload, err := env.PayloadObject()
	if err != nil {
		return "", "", nil, noRoute("weighvision payload is not a JSON object")
	}

	sessionURL := r.weighVisionBase + sessionsPath + "/" + url.PathEscape(t.SessionID)

	switch {
	case matchesEvent(env.EventType, "session.created"):
		body := &SessionCreateRequest{
			TenantID:  env.TenantID,
			FarmID:    t.FarmID,
			BarnID:    t.BarnID,
			DeviceID:  env.DeviceID,
			StationID: t.StationID,
			SessionID: t.SessionID,
			StartAt:   env.TS,
			EventID:   env.EventID,
		}

		if batch, ok := firstString(payload, batchIDAliases); ok {
			body.BatchID = &batch
		}

		return RouteSessionCreate, r.weighVisionBase + sessionsPath, body, nil

	case matchesEvent(env.EventType, "weight.recorded"):
		weight, ok := firstNumber(payload, weightAliases)
		if !ok {
			return "", "", nil, noRoute("no routing rule for event_type %s: numeric weight missing", env.EventType)
		}

		return RouteBindWeight, sessionURL + "/bind-weight", &BindWeightRequest{
			TenantID:   env.TenantID,
			EventID:    env.EventID,
			WeightKg:   weight,
			OccurredAt: env.TS,
		}, nil

	case matchesEvent(env.EventType, "image.captured"),
		matchesEvent(env.EventType, "media.bound"),
		matchesEvent(env.EventType, "media.stored"):
		mediaID, ok := firstString(payload, mediaIDAliases)
		if !ok {
			return "", "", nil, noRoute("no routing rule for event_type %s: media id missing", env.EventType)
		}

		return RouteBindMedia, sessionURL + "/bind-media", &BindMediaRequest{
			TenantID:      env.TenantID,
			EventID:       env.EventID,
			MediaObjectID: mediaID,
			OccurredAt:    env.TS,
		}, nil

	case matchesEvent(env.EventType, "session.finalized"):
		return RouteFinalize, sessionURL + "/finalize", &FinalizeRequest{
			TenantID:   env.TenantID,
			EventID:    env.EventID,
			OccurredAt: env.TS,
		}, nil
	}

	return "", "", nil, noRoute("no routing rule for event_type %s", env.EventType)
}

// matchesEvent accepts the bare suffix or any dotted namespace before it,
// so "weighvision.session.created" matches "session.created".
func matchesEvent(eventType, suffix string) bool {
	return eventType == suffix || strings.HasSuffix(eventType, "."+suffix)
}

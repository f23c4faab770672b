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

package ingest

import (
	"github.com/barnlink/ingress/pkg/envelope"
	"github.com/barnlink/ingress/pkg/topic"
)

// Status is the terminal state of a message.
type Status string

const (
	StatusDropped   Status = "dropped"
	StatusDuplicate Status = "duplicate"
	StatusProcessed Status = "processed"
)

// Class says why a message was not processed. Empty for processed messages.
type Class string

const (
	ClassMalformed      Class = "malformed"
	ClassInconsistent   Class = "inconsistent"
	ClassUnauthorized   Class = "unauthorized"
	ClassDuplicate      Class = "duplicate"
	ClassNoRoute        Class = "no_route"
	ClassStorageFailure Class = "storage_failure"
)

// RouteResult describes the downstream call of a processed message.
type RouteResult string

const (
	RouteNone      RouteResult = "none"
	RouteSucceeded RouteResult = "succeeded"
	RouteFailed    RouteResult = "failed"
)

// Outcome is what happened to one message.
type Outcome struct {
	Status      Status
	Class       Class
	Reason      string
	Kind        topic.Kind
	Route       string
	RouteResult RouteResult
	StatusCode  int

	EventID        string
	TraceID        string
	TenantID       string
	DeviceID       string
	TraceGenerated bool
	TSFromAlias    bool
}

func dropped(class Class, reason string) Outcome {
	return Outcome{Status: StatusDropped, Class: class, Reason: reason}
}

func (o Outcome) withKind(kind topic.Kind) Outcome {
	o.Kind = kind
	return o
}

func (o *Outcome) identify(res *envelope.Result) {
	o.EventID = res.Envelope.EventID
	o.TraceID = res.Envelope.TraceID
	o.TenantID = res.Envelope.TenantID
	o.DeviceID = res.Envelope.DeviceID
	o.TraceGenerated = res.TraceGenerated
	o.TSFromAlias = res.TSFromAlias
}

func (o *Outcome) drop(class Class, reason string) {
	o.Status = StatusDropped
	o.Class = class
	o.Reason = reason
}

func (o *Outcome) processed(result RouteResult) {
	o.Status = StatusProcessed
	o.Class = ""
	o.RouteResult = result
}

// Dropped reports whether the message was discarded for a reason other
// than being a duplicate.
func (o *Outcome) Dropped() bool { return o.Status == StatusDropped }

/*
Copyright (c) The Notification Proxy Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package hostemitter implements the host-side half of the proxy
// (§4.4): one independent task per inbound request, sanitizing every
// untrusted field before handing it to the real notification daemon and
// translating the result back into a framed reply.
package hostemitter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	"github.com/qubesos/notification-proxy/dbusnotify"
	"github.com/qubesos/notification-proxy/idmap"
	"github.com/qubesos/notification-proxy/sanitize"
	"github.com/qubesos/notification-proxy/stats"
	"github.com/qubesos/notification-proxy/wire"
)

const errNameInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"

// hostBackend is the slice of dbusnotify.HostProxy the emitter needs.
// Declaring it here (rather than depending on the concrete type)
// keeps the sanitization and gating logic testable without a real bus
// connection.
type hostBackend interface {
	Notify(dbusnotify.NotifyArgs) (uint32, error)
	GetCapabilities() (dbusnotify.Capabilities, error)
	Watch() (chan *dbus.Signal, error)
	Unwatch(chan *dbus.Signal)
}

// Config carries the per-guest identity the emitter stamps onto every
// forwarded notification (§4.4 steps 5-6, §6).
type Config struct {
	// GuestName is the qube/domain name, read from QREXEC_REMOTE_DOMAIN.
	GuestName string
	// GuestIcon is the icon string associated with that guest.
	GuestIcon string
}

// Emitter is the host-side engine. One is constructed per process and
// shared by the request-handling tasks and the event fan-out tasks
// (§4.7); the only mutable state it owns directly is the capability
// cache refreshed after each ServerRestart.
type Emitter struct {
	cfg  Config
	host hostBackend
	maps *idmap.Maps
	out  *wire.Writer

	capsMu sync.RWMutex
	caps   dbusnotify.Capabilities

	stats    *stats.PrometheusExporter
	inFlight int64
}

// New builds an Emitter. RefreshCapabilities must be called at least
// once before HandleMessage, normally right after the initial
// connection to the real daemon succeeds.
func New(cfg Config, host *dbusnotify.HostProxy, maps *idmap.Maps, out *wire.Writer) *Emitter {
	return &Emitter{cfg: cfg, host: host, maps: maps, out: out}
}

// SetStats attaches a metrics exporter. Optional: nil by default, in
// which case the emitter just skips the instrumentation calls.
func (e *Emitter) SetStats(s *stats.PrometheusExporter) {
	e.stats = s
}

func (e *Emitter) reject(reason string) {
	if e.stats != nil {
		e.stats.Rejected.WithLabelValues(reason).Inc()
	}
}

// RefreshCapabilities re-fetches the real daemon's capability list. It is
// called once at startup and again every time the daemon's bus ownership
// changes (§4.7).
func (e *Emitter) RefreshCapabilities() error {
	caps, err := e.host.GetCapabilities()
	if err != nil {
		return fmt.Errorf("hostemitter: fetching capabilities: %w", err)
	}
	e.capsMu.Lock()
	e.caps = caps
	e.capsMu.Unlock()
	return nil
}

func (e *Emitter) capabilities() dbusnotify.Capabilities {
	e.capsMu.RLock()
	defer e.capsMu.RUnlock()
	return e.caps
}

// HandleMessage spawns the independent per-request task described in
// §4.4/§5: the pipe reader must never block waiting on the real daemon.
func (e *Emitter) HandleMessage(msg *wire.Message) {
	go e.process(msg)
}

func (e *Emitter) process(msg *wire.Message) {
	n := atomic.AddInt64(&e.inFlight, 1)
	if e.stats != nil {
		e.stats.OutstandingReqs.Set(float64(n))
	}
	defer func() {
		n := atomic.AddInt64(&e.inFlight, -1)
		if e.stats != nil {
			e.stats.OutstandingReqs.Set(float64(n))
		}
	}()
	e.sendReply(e.build(msg))
}

// build runs one request through resolution, sanitization, capability
// gating and the real Notify call, returning the reply to send back
// (§4.4).
func (e *Emitter) build(msg *wire.Message) *wire.ReplyMessage {
	seq := msg.Sequence
	n := msg.Notification

	hostReplacesID, failure := e.resolveReplacesID(n.ReplacesID)
	if failure != nil {
		failure.Sequence = seq
		e.reject(stats.ReasonInvalidReplacesID)
		return failure
	}

	if err := sanitize.ExpireTimeout(n.ExpireTimeout); err != nil {
		e.reject(stats.ReasonExpireTimeout)
		return invalidArgsReply(err, seq)
	}

	sanitizedSummary := sanitize.Text(sanitize.DefaultClassifier, n.Summary)
	sanitizedBody := sanitize.Text(sanitize.DefaultClassifier, n.Body)

	sanitizedActions, failure := e.sanitizeActions(n.Actions, seq)
	if failure != nil {
		e.reject(stats.ReasonActions)
		return failure
	}

	var category *string
	if n.Category != nil {
		if err := sanitize.Category(*n.Category); err != nil {
			e.reject(stats.ReasonCategory)
			return invalidArgsReply(err, seq)
		}
		category = n.Category
	}

	var image *sanitize.Image
	if n.Image != nil {
		img, err := sanitize.ValidateImage(
			n.Image.Width, n.Image.Height, n.Image.Rowstride,
			n.Image.HasAlpha, n.Image.BitsPerSample, n.Image.Channels, n.Image.Data,
		)
		if err != nil {
			e.reject(stats.ReasonImage)
			return invalidArgsReply(err, seq)
		}
		image = img
	}

	caps := e.capabilities()

	hints := map[string]dbus.Variant{}
	if n.Urgency != nil {
		hints["urgency"] = dbus.MakeVariant(byte(*n.Urgency))
	}
	if n.SuppressSound && caps.Has(dbusnotify.CapSound) {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}
	if n.Transient && caps.Has(dbusnotify.CapPersistence) {
		hints["transient"] = dbus.MakeVariant(true)
	}
	if n.Resident && caps.Has(dbusnotify.CapPersistence) {
		hints["resident"] = dbus.MakeVariant(true)
	}
	if category != nil {
		hints["category"] = dbus.MakeVariant(*category)
	}
	if image != nil {
		hints["image-data"] = dbus.MakeVariant(imageDataStruct{
			Width:         image.Width,
			Height:        image.Height,
			Rowstride:     image.Rowstride,
			HasAlpha:      image.HasAlpha,
			BitsPerSample: image.BitsPerSample,
			Channels:      image.Channels,
			Data:          image.Data,
		})
	}

	if !caps.Has(dbusnotify.CapActions) {
		sanitizedActions = nil
	}

	body := sanitizedBody
	if caps.Has(dbusnotify.CapBodyMarkup) {
		body = escapeMarkup(sanitizedBody)
	}

	args := dbusnotify.NotifyArgs{
		AppName:       "Qube: " + e.cfg.GuestName,
		ReplacesID:    hostReplacesID,
		AppIcon:       e.cfg.GuestIcon,
		Summary:       e.cfg.GuestName + ": " + sanitizedSummary,
		Body:          body,
		Actions:       sanitizedActions,
		Hints:         hints,
		ExpireTimeout: n.ExpireTimeout,
	}

	hostID, err := e.host.Notify(args)
	if err != nil {
		e.reject(stats.ReasonHostError)
		return realServiceErrorReply(err, seq)
	}

	guestHint := idmap.GuestID(0)
	if n.ReplacesID != 0 {
		guestHint = idmap.GuestID(n.ReplacesID)
	}
	hid, err := idmap.NewHostID(hostID)
	if err != nil {
		log.Errorf("hostemitter: real daemon returned invalid host id 0 for sequence %d", seq)
		return wire.NewUnknownErrorReply(seq)
	}
	guestID, err := e.maps.Allocate(hid, guestHint)
	if err != nil {
		// A reused host ID without a prior close is a protocol
		// violation against the real daemon, not against the guest;
		// the guest still gets a usable reply, but this is logged
		// loudly since it indicates the mapping has drifted.
		log.Errorf("hostemitter: %v", err)
		return wire.NewUnknownErrorReply(seq)
	}

	if e.stats != nil {
		e.stats.Forwarded.Inc()
		e.stats.MappingSize.Set(float64(e.maps.Len()))
	}

	return wire.NewIDReply(uint32(guestID), seq)
}

// sanitizeActions validates and sanitizes the actions list per §4.6: the
// list must have even length, even-indexed elements (labels) go through
// the text sanitizer, odd-indexed elements (keys) must pass the action
// key grammar or the whole request is rejected.
func (e *Emitter) sanitizeActions(actions []string, seq uint64) ([]string, *wire.ReplyMessage) {
	if len(actions)%2 != 0 {
		msg := "actions must have even length (alternating label/key pairs)"
		return nil, wire.NewDBusErrorReply(errNameInvalidArgs, &msg, seq)
	}
	out := make([]string, len(actions))
	for i, s := range actions {
		if i%2 == 0 {
			out[i] = sanitize.Text(sanitize.DefaultClassifier, s)
			continue
		}
		if err := sanitize.ActionKey(s); err != nil {
			return nil, invalidArgsReply(err, seq)
		}
		out[i] = s
	}
	return out, nil
}

// resolveReplacesID translates a guest-space replaces_id into host
// space. A zero value means "new" (§4.4 step 2). The returned
// *wire.ReplyMessage is non-nil only on failure, in which case it is
// the reply build should return immediately without a sequence number
// filled in yet — the caller fills it in.
func (e *Emitter) resolveReplacesID(replacesID uint32) (hostReplacesID uint32, failure *wire.ReplyMessage) {
	if replacesID == 0 {
		return 0, nil
	}
	guestID, err := idmap.NewGuestID(replacesID)
	if err != nil {
		msg := err.Error()
		return 0, wire.NewDBusErrorReply(errNameInvalidArgs, &msg, 0)
	}
	hostID, ok := e.maps.LookupGuest(guestID)
	if !ok {
		msg := "replaces_id does not refer to a notification this guest owns"
		return 0, wire.NewDBusErrorReply(errNameInvalidArgs, &msg, 0)
	}
	return uint32(hostID), nil
}

func invalidArgsReply(err error, seq uint64) *wire.ReplyMessage {
	msg := err.Error()
	return wire.NewDBusErrorReply(errNameInvalidArgs, &msg, seq)
}

func realServiceErrorReply(err error, seq uint64) *wire.ReplyMessage {
	if dbusErr, ok := err.(*dbus.Error); ok {
		var msg *string
		if len(dbusErr.Body) > 0 {
			if s, ok := dbusErr.Body[0].(string); ok {
				msg = &s
			}
		}
		return wire.NewDBusErrorReply(dbusErr.Name, msg, seq)
	}
	log.Warningf("hostemitter: unexpected error type from real daemon: %v", err)
	return wire.NewUnknownErrorReply(seq)
}

// imageDataStruct mirrors the (iiibiiay) D-Bus struct signature for the
// image-data hint. godbus marshals exported struct fields positionally.
type imageDataStruct struct {
	Width         int32
	Height        int32
	Rowstride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

// escapeMarkup HTML-escapes text that has already been through the text
// sanitizer, per the body-markup capability path (§4.4 step 7). It runs
// strictly after sanitization (§9 open question: ordering is load-
// bearing, not incidental).
func escapeMarkup(s string) string {
	var b []byte
	for _, r := range s {
		switch r {
		case '<':
			b = append(b, "&lt;"...)
		case '>':
			b = append(b, "&gt;"...)
		case '&':
			b = append(b, "&amp;"...)
		case '\'':
			b = append(b, "&apos;"...)
		case '"':
			b = append(b, "&quot;"...)
		default:
			b = append(b, string(r)...)
		}
	}
	return string(b)
}

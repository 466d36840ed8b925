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

package hostemitter

import (
	"context"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qubesos/notification-proxy/dbusnotify"
	"github.com/qubesos/notification-proxy/idmap"
	"github.com/qubesos/notification-proxy/stats"
	"github.com/qubesos/notification-proxy/wire"
)

// RunEventLoop subscribes to the real daemon's signals and dispatches
// NotificationClosed, ActionInvoked, and NameOwnerChanged independently
// for as long as ctx is alive (§4.7). All three share a single signal
// channel from godbus but are logically independent consumers; ordering
// between them is not guaranteed by D-Bus and none is assumed here.
func (e *Emitter) RunEventLoop(ctx context.Context) error {
	ch, err := e.host.Watch()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer e.host.Unwatch(ch)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case sig, ok := <-ch:
				if !ok {
					return nil
				}
				e.dispatchSignal(sig)
			}
		}
	})
	return g.Wait()
}

func (e *Emitter) dispatchSignal(sig *dbus.Signal) {
	if closed, ok := dbusnotify.ParseClosedSignal(sig); ok {
		e.handleNotificationClosed(closed)
		return
	}
	if invoked, ok := dbusnotify.ParseInvokedSignal(sig); ok {
		e.handleActionInvoked(invoked)
		return
	}
	if dbusnotify.IsNameOwnerLost(sig) {
		e.handleNameOwnerLost()
		return
	}
}

// handleNotificationClosed translates host_id, atomically removing it
// from the mapping, and forwards Dismissed if it was still live (§4.7).
func (e *Emitter) handleNotificationClosed(ev dbusnotify.ClosedSignal) {
	hostID, err := idmap.NewHostID(ev.ID)
	if err != nil {
		return
	}
	guestID, ok := e.maps.RemoveHost(hostID)
	if !ok {
		return
	}
	if e.stats != nil {
		e.stats.Events.WithLabelValues(stats.EventClosed).Inc()
		e.stats.MappingSize.Set(float64(e.maps.Len()))
	}
	e.sendReply(wire.NewDismissedReply(uint32(guestID), ev.Reason))
}

// handleActionInvoked translates host_id via lookup only (no removal)
// and forwards ActionInvoked if the guest still owns it (§4.7).
func (e *Emitter) handleActionInvoked(ev dbusnotify.InvokedSignal) {
	hostID, err := idmap.NewHostID(ev.ID)
	if err != nil {
		return
	}
	guestID, ok := e.maps.LookupHost(hostID)
	if !ok {
		return
	}
	if e.stats != nil {
		e.stats.Events.WithLabelValues(stats.EventActionInvoked).Inc()
	}
	e.sendReply(wire.NewActionInvokedReply(uint32(guestID), ev.Action))
}

// handleNameOwnerLost clears the mapping and emits ServerRestart once;
// the next request from the guest re-establishes mappings transparently
// (§4.7, §7 stratum 3).
func (e *Emitter) handleNameOwnerLost() {
	e.maps.Clear()
	if err := e.RefreshCapabilities(); err != nil {
		log.Warningf("hostemitter: refreshing capabilities after restart: %v", err)
	}
	if e.stats != nil {
		e.stats.Events.WithLabelValues(stats.EventServerRestart).Inc()
		e.stats.MappingSize.Set(0)
	}
	e.sendReply(wire.NewServerRestartReply())
}

func (e *Emitter) sendReply(r *wire.ReplyMessage) {
	payload, err := r.MarshalBinary()
	if err != nil {
		log.Fatalf("hostemitter: encoding event reply: %v", err)
	}
	if err := e.out.WriteFrame(payload); err != nil {
		log.Fatalf("hostemitter: writing event reply frame: %v", err)
	}
}

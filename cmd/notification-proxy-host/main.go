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

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qubesos/notification-proxy/dbusnotify"
	"github.com/qubesos/notification-proxy/hostconfig"
	"github.com/qubesos/notification-proxy/hostemitter"
	"github.com/qubesos/notification-proxy/idmap"
	"github.com/qubesos/notification-proxy/stats"
	"github.com/qubesos/notification-proxy/wire"
)

// stdio combines stdin and stdout into the single io.ReadWriter the
// version handshake expects.
type stdio struct {
	io.Reader
	io.Writer
}

func main() {
	c := &hostconfig.Config{
		DynamicConfig: hostconfig.DynamicConfig{MetricInterval: time.Minute},
	}

	flag.StringVar(&c.ConfigFile, "config", "", "Path to a config file with dynamic settings")
	flag.StringVar(&c.DebugAddr, "monitoringaddr", "", "host:port to serve /metrics on")
	flag.StringVar(&c.LogLevel, "loglevel", "warning", "Set a log level. Can be: debug, info, warning, error")
	flag.StringVar(&c.GuestName, "guestname", "", "Override the guest name normally read from QREXEC_REMOTE_DOMAIN")
	flag.StringVar(&c.GuestIcon, "guesticon", "", "Icon string to attach to every notification from this guest")
	systemBus := flag.Bool("systembus", true, "connect to the real notification daemon over the system bus instead of the session bus")
	flag.Parse()

	switch c.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", c.LogLevel)
	}

	if c.ConfigFile != "" {
		dc, err := hostconfig.ReadDynamicConfig(c.ConfigFile)
		if err != nil {
			log.Fatal(err)
		}
		c.DynamicConfig = *dc
	}

	if c.GuestName == "" {
		c.GuestName = os.Getenv("QREXEC_REMOTE_DOMAIN")
	}
	if c.GuestName == "" {
		log.Fatal("notification-proxy-host: guest name unknown: set QREXEC_REMOTE_DOMAIN or -guestname")
	}

	if _, err := wire.Handshake(stdio{os.Stdin, os.Stdout}, wire.MajorVersion, wire.MinorVersion); err != nil {
		log.Fatalf("notification-proxy-host: version handshake: %v", err)
	}

	var conn *dbus.Conn
	var err error
	if *systemBus {
		conn, err = dbus.ConnectSystemBus()
	} else {
		conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		log.Fatalf("notification-proxy-host: connecting to real notification daemon's bus: %v", err)
	}
	defer conn.Close()

	host := dbusnotify.NewHostProxy(conn)
	e := hostemitter.New(hostemitter.Config{GuestName: c.GuestName, GuestIcon: c.GuestIcon}, host, idmap.New(), wire.NewWriter(os.Stdout))

	if c.DebugAddr != "" {
		exporter := stats.NewPrometheusExporter(c.DebugAddr)
		e.SetStats(exporter)
		go exporter.Start()
	}

	if err := e.RefreshCapabilities(); err != nil {
		log.Fatalf("notification-proxy-host: fetching initial capabilities: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.RunEventLoop(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return e.ReadLoop(os.Stdin)
	})

	log.Infof("notification-proxy-host: ready, forwarding %s's notifications", c.GuestName)

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("notification-proxy-host: fatal error: %v", err)
	}
}

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
	"flag"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	"github.com/qubesos/notification-proxy/dbusnotify"
	"github.com/qubesos/notification-proxy/guestagent"
	"github.com/qubesos/notification-proxy/wire"
)

// stdio combines stdin and stdout into the single io.ReadWriter the
// version handshake expects; the pipe's two directions are otherwise
// read and written independently by the agent.
type stdio struct {
	io.Reader
	io.Writer
}

func main() {
	loglevel := flag.String("loglevel", "warning", "Set a log level. Can be: debug, info, warning, error")
	debugAddr := flag.String("pprofaddr", "", "host:port for the pprof server to bind")
	systemBus := flag.Bool("systembus", false, "export the local Notifications interface on the system bus instead of the session bus")
	flag.Parse()

	switch *loglevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", *loglevel)
	}

	if *debugAddr != "" {
		log.Warningf("Starting profiler on %s", *debugAddr)
		go func() {
			log.Println(http.ListenAndServe(*debugAddr, nil))
		}()
	}

	if _, err := wire.Handshake(stdio{os.Stdin, os.Stdout}, wire.MajorVersion, wire.MinorVersion); err != nil {
		log.Fatalf("notification-proxy-guest: version handshake: %v", err)
	}

	var conn *dbus.Conn
	var err error
	if *systemBus {
		conn, err = dbus.ConnectSystemBus()
	} else {
		conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		log.Fatalf("notification-proxy-guest: connecting to local bus: %v", err)
	}
	defer conn.Close()

	agent := guestagent.New(wire.NewWriter(os.Stdout))

	service, err := dbusnotify.NewGuestService(conn, agent)
	if err != nil {
		log.Fatalf("notification-proxy-guest: exporting local Notifications interface: %v", err)
	}
	agent.SetRegistrar(service)

	log.Infof("notification-proxy-guest: ready, forwarding requests to the host emitter")

	if err := agent.ReadLoop(os.Stdin); err != nil {
		// The pipe to the host emitter is this process's only reason
		// to exist; losing it is unrecoverable and the supervisor is
		// expected to restart us (§5).
		log.Fatalf("notification-proxy-guest: reading from host emitter: %v", err)
	}
}

// Package seatrack ingests marine navigation data and maintains a live table
// of tracked vessels.
//
// Raw lines arrive over serial, UDP, TCP or WebSocket transports (or as
// batches from an HTTP JSON feed), are classified by dialect, decoded into
// contact records and merged into a single contact store. Every merged
// contact is pushed to the configured sinks, and every raw line is handed to
// the line listeners.
//
// # Architecture
//
//	┌──────────┐ ┌──────────┐ ┌──────────┐ ┌───────────┐
//	│  serial  │ │   udp    │ │   tcp    │ │ websocket │   input.Supervisor
//	└────┬─────┘ └────┬─────┘ └────┬─────┘ └─────┬─────┘   (enable, reconnect)
//	     └────────────┴─────┬──────┴─────────────┘
//	                        ↓ lines
//	               ┌─────────────────┐
//	               │  router.Router  │──→ listeners: recorder, relay
//	               │ classify+decode │
//	               └────────┬────────┘
//	                        ↓ records           ┌───────────┐
//	               ┌─────────────────┐ ←──────── │ feed poll │
//	               │  contact.Store  │           └───────────┘
//	               │ merge/purge/cache│
//	               └────────┬────────┘
//	                        ↓ contacts
//	             ┌──────────┴──────────┐
//	             ↓                     ↓
//	       ┌──────────┐          ┌──────────┐
//	       │ natsink  │          │kafkasink │
//	       └──────────┘          └──────────┘
//
// The HTTP gateway reads the store and drives the supervisor; engine.Engine
// owns the lifecycle of all of the above.
//
// # Dialects
//
//   - NMEA 0183 sentences ($GPRMC, $GPHDT, $RATTM ...), own-ship and radar
//   - AIS AIVDM/AIVDO, including multi-part messages
//   - Proprietary sentences carrying bearing/range contacts
//   - JSON objects, one vessel report per line
//   - CSV vessel reports
//
// # Packages
//
//	cmd/seatrack        entry point, flags, logging
//	engine              wiring and lifecycle
//	config              layered JSON config with SEATRACK_* overrides
//	input/...           transports, framing, supervisor, feed poller
//	processor/...       classifier, decoders, router
//	contact             contact store, own ship, label cache, geodesy
//	output/...          NATS and Kafka sinks, recorder, WebSocket relay
//	gateway/http        chi HTTP API
//	errors, metric,
//	health, component   shared infrastructure
//
// # Running
//
//	./bin/seatrack --config /etc/seatrack/site.json --log-format text
package seatrack

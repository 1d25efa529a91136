// Package input runs seatrack's transport connections.
//
// A Connection owns one transport's lifecycle: it dials through a Dialer,
// frames the bytes it reads into lines, and hands each line to a LineSink
// (normally the router's Ingest). A failed session is retried after a fixed
// delay until the connection is stopped. The Supervisor holds the enabled
// flag for every named connection and reports whether any is connected.
//
// Stream transports (serial, TCP) use a Framer, which splits on newlines and
// on sentence-start markers. Datagram transports (UDP) use SplitDatagram.
//
//	conn := input.NewConnection(input.Deps{
//		Config: input.Config{Name: "tcp", Framing: input.FramingStream},
//		Dialer: tcp.NewDialer(tcp.Config{Address: "10.0.0.5:10110"}),
//		Sink:   router.Ingest,
//	})
//	sup := input.NewSupervisor(input.SupervisorDeps{})
//	_ = sup.Add(conn)
//	_ = sup.Enable("tcp")
package input

// Package engine assembles a running seatrack node from a config.Config.
//
// New builds every component up front: the contact store, the router, one
// transport connection per configured kind (serial, udp, tcp) registered
// with the supervisor, the optional feed poller, recorder, relay, NATS and
// Kafka sinks, and the HTTP gateway. Start brings them up in dependency
// order:
//
//	store.LoadCache -> sinks -> listeners -> transports -> feed -> maintenance -> gateway
//
// and Stop tears them down in reverse, finishing with a last cache flush so
// labels learned since the previous flush survive a restart.
//
// Maintenance runs two tickers: Purge every store.purge_interval, removing
// contacts older than store.max_age, and FlushCache every
// store.flush_interval.
package engine

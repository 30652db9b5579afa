// Package connector owns the association between live connections and the
// protocol processors servicing them.
//
// A Handler is driven by a completion-based transport: the transport delivers
// one event per read completion and guarantees at most one outstanding
// callback per connection. For every event the Handler looks up (or creates)
// the binding in its Registry, drives the bound Processor one step and acts
// on the outcome: re-arm the socket, release the binding, or hand the
// connection off after a protocol upgrade.
//
// Processors are recycled through a Pool. Release is reachable from two
// places, the Handler itself after a processing turn (cooperative) and the
// transport when it notices a socket is gone (forced); both end up in a
// single release routine in which Registry.Remove decides which caller gets
// to recycle the processor. A processor is therefore pushed back to the Pool
// at most once per binding, however the two paths interleave.
//
// Shutdown only asks the transport to close every registered socket. The
// transport's forced release then does the recycling asynchronously.
package connector

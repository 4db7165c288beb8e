// Package metrics exposes scheduling activity as Prometheus metrics.
//
// A Recorder owns its own registry so tests and multiple servers in one
// process never collide on the global default registry. It subscribes to
// letter lifecycle events through events.EventHandler and is fed poller and
// notifier outcomes directly.
package metrics

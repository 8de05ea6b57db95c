// Package notify fans a message out to every configured channel. Deliveries
// run concurrently, each under its own deadline, and a failing channel never
// affects the others or the caller.
//
// Channel transports live in subpackages (telegram, email, webhook, pubsub,
// live); this package only knows the Channel contract.
package notify

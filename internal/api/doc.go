// Package api exposes the HTTP interface of the result crawler: catalogue
// and stored-result queries, a live acquisition trigger, a test
// notification trigger, the websocket feed, and health and metrics probes.
package api

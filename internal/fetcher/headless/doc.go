// Package headless contains the browser-backed acquisition strategies. Each
// attempt launches its own Chrome process and tears it down before returning.
package headless

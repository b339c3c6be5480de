// Package client is a Go client for the Read API.
//
// Requests are retried with jittered exponential backoff on 5xx and 429
// responses. A 404 from the latest-price endpoint maps to ErrNotFound.
package client

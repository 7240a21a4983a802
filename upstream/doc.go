// Package upstream talks to the Respond.io REST API.
//
// Client is a small JSON client with bounded retries. Manager caches one
// Client per (endpoint, credential) pair, probes every cached client on a
// fixed interval and rebuilds clients that keep failing. Manager never stores
// a credential in its cache key; keys are derived from a hash of the endpoint
// and a SHA-256 fingerprint of the credential.
package upstream

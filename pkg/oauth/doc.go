// Package oauth implements the OAuth 2.0 token lifecycle for CLI and
// headless tools acting as public clients: the authorization code flow
// with PKCE against a loopback callback server, the RFC 8628 device
// flow for environments without a browser, refresh token grants, and a
// refresh coordinator that keeps concurrent callers and concurrent
// processes from refreshing the same token more than once.
//
// Credentials are persisted through the Store interface; this package
// ships an in-memory store, and the pkg/store subpackages add file and
// Redis backed implementations.
package oauth

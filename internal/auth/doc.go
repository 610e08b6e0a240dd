// Package auth acquires Microsoft identity platform access tokens for Graph.
//
// With a client secret the provider uses the OAuth2 client credentials grant
// (application permissions). Without one it falls back to the device code
// grant (delegated permissions); the resulting token is persisted in a JSON
// cache on the db mount and refreshed on later runs.
package auth

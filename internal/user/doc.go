// Package user manages app accounts and their channel-level access.
// Authentication on the buses is token-based: each login mints an
// opaque access token and inbound messages are matched against the
// stored tokens.
package user

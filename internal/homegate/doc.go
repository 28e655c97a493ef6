// Package homegate owns the gateway's own record: first-boot
// provisioning of the database (gateway row, system rules, default
// rooms), field updates, and the full-state snapshot published to
// reconnecting apps.
package homegate

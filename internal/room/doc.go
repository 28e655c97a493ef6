// Package room persists the rooms and floors channels are organised
// into. Provisioning seeds a default set; the bus exposes CRUD on top
// of the repository.
package room

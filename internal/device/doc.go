// Package device owns the device/channel/cluster/attribute model of
// the gateway: classification of joining mesh nodes, ingestion of live
// attribute reports, IAS zone decoding, and the per-type status
// vector encoding applications consume.
//
// The Store persists everything in SQLite and commits each operation
// atomically; the orchestrator publishes results only after commit.
package device

// Package mqtt wraps the Eclipse Paho client with the connection
// behaviour both gateway buses rely on: automatic reconnection with
// exponential backoff, subscription restoration after reconnect, TLS
// for the cloud broker, and panic recovery around message handlers.
//
// A Client is created per bus via Connect, which takes the bus section
// of the gateway configuration plus per-connection Options (client id,
// credentials, optional last-will message). The local bus and the
// cloud bus differ only in their configuration; the wire behaviour
// lives in the bus package, not here.
//
// Handlers registered with Subscribe run on paho's dispatch goroutines.
// A panicking handler is logged and does not take the connection down.
package mqtt

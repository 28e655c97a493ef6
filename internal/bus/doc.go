// Package bus synchronizes the gateway state machine with its two
// MQTT brokers: the LAN broker the mobile apps reach directly and the
// cloud broker that relays when they are away.
//
// Every message is a uniform envelope {action, token, type, value}.
// On the local bus the topic carries the audience: requests arrive on
// <root>/request/<user_id>/<subject> and responses leave on
// <root>/response/<user_id>/<subject>, with the "all" audience
// reserved for login, gateway state and doorbell traffic. Inbound
// requests are authenticated by matching the envelope token against
// the user roster; outbound broadcasts are re-enveloped per recipient
// so each app only ever sees its own token and restricted users only
// receive the channels they were granted.
//
// The cloud bus scopes topics by gateway id instead and trusts the
// broker's transport authentication. On every (re)connect the cloud
// sync pushes a full snapshot so the remote side converges after any
// gap.
//
// Both layers publish only state that has already been committed; the
// event bus delivers post-commit notifications for fan-out.
package bus

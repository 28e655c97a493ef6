package user

// Permission types stored in users.permission_type.
const (
	// PermissionUnrestricted grants access to every channel and every
	// broadcast without per-channel grants.
	PermissionUnrestricted = 1

	// PermissionRestricted limits the user to channels explicitly
	// granted in user_access.
	PermissionRestricted = 2
)

// User is a provisioned app account on this gateway. AccessToken is an
// opaque per-user credential minted at login; inbound messages are
// authenticated by matching it.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Status         int    `json:"status"`
	PermissionType int    `json:"permission_type"`
	AccessToken    string `json:"-"`
	LastSeen       int64  `json:"last_seen"`
	Created        int64  `json:"created"`
	Updated        int64  `json:"updated"`
}

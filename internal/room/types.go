package room

// DefaultName is the name of the provisioning-seeded room that newly
// classified channels are assigned to.
const DefaultName = "Mặc định"

// Room represents a physical space channels and cameras belong to.
type Room struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Channels string `json:"channels"`
	FloorID  string `json:"floor_id"`
	Created  int64  `json:"created"`
	Updated  int64  `json:"updated"`
}

// Floor is an optional grouping of rooms.
type Floor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

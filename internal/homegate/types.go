package homegate

// Homegate is this gateway's own record: identity, network addresses
// and versions, published to apps as part of the full-state snapshot.
type Homegate struct {
	ID         string `json:"id"`
	Site       string `json:"site"`
	Name       string `json:"name"`
	Token      string `json:"-"`
	WanMAC     string `json:"wan_mac"`
	WwanMAC    string `json:"wwan_mac"`
	IPLocal    string `json:"ip_local"`
	IPPublic   string `json:"ip_public"`
	Model      string `json:"model"`
	Serial     string `json:"serial"`
	State      int    `json:"state"`
	Config     string `json:"config"`
	ZigVersion string `json:"zig_version"`
	HWVersion  string `json:"hw_version"`
	SWVersion  string `json:"sw_version"`
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	LastUpdate int64  `json:"last_update"`
	LastSeen   int64  `json:"last_seen"`
}

// Identity is what provisioning needs to create the gateway record.
type Identity struct {
	ID     string
	Site   string
	Name   string
	Model  string
	Serial string
	Token  string
}

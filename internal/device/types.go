package device

import "math"

// Channel type enumeration. The numeric values are part of the wire
// protocol and stored in the channels table; applications key their UI
// on them.
const (
	TypeGeneric     = 0  // plain on/off actuator or switch
	TypeDoor        = 8  // door/window contact
	TypePIR         = 9  // motion sensor
	TypeSmoke       = 10 // smoke detector
	TypeWaterleak   = 13 // water leak sensor
	TypeRemote      = 15 // alarm remote control
	TypeSOSButton   = 16 // standalone SOS button
	TypeSiren       = 21 // indoor siren
	TypePIRPet      = 25 // pet-immune motion sensor
	TypeEnvironment = 28 // combined temperature + humidity sensor
)

// Protocol cluster ids the ingestion path interprets. Reports from any
// other cluster are stored as raw attributes without status derivation.
const (
	ClusterBasic       = 0
	ClusterOnOff       = 6
	ClusterTemperature = 1026
	ClusterHumidity    = 1029
	ClusterIASZone     = 1280

	// AttrModelIdentifier is the basic-cluster attribute carrying the
	// model string used for device classification.
	AttrModelIdentifier = 5
)

// maxLQI is the upper bound of the radio link-quality indicator.
const maxLQI = 255

// Device is one physical node on the sensor mesh. A device owns one
// channel per endpoint; deleting it cascades through its channels.
type Device struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Addr                 string `json:"addr"`
	IEEE                 string `json:"ieee"`
	Discovery            string `json:"-"`
	Type                 int    `json:"type"`
	Model                string `json:"model"`
	Manufacturer         string `json:"manufacturer"`
	SerialNumber         string `json:"serial_number"`
	SWVersion            string `json:"sw_version"`
	HWVersion            string `json:"hw_version"`
	GenericType          string `json:"-"`
	IDs                  int    `json:"-"`
	BitField             string `json:"-"`
	DescriptorCapability string `json:"-"`
	LQI                  int    `json:"-"`
	MACCapability        string `json:"-"`
	ManufacturerCode     string `json:"-"`
	PowerType            int    `json:"-"`
	LowBattery           int    `json:"low_battery"`
	ServerMask           int    `json:"-"`
	RejoinStatus         int    `json:"-"`
	Created              int64  `json:"created"`
	Updated              int64  `json:"updated"`
	LastSeen             int64  `json:"-"`
}

// Signal converts the raw LQI to the 0-100 scale applications display.
func (d *Device) Signal() int {
	return int(math.Round(100 * float64(d.LQI) / maxLQI))
}

// Channel is one logical sensor/actuator endpoint on a device. Its
// status vector shape is fully determined by Type (see EncodeStatus).
type Channel struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	IEEE         string       `json:"-"`
	EndpointID   int          `json:"endpoint"`
	Type         int          `json:"type"`
	Status       StatusVector `json:"status"`
	Config       string       `json:"config"`
	ProfileID    int          `json:"-"`
	DeviceType   int          `json:"-"`
	ZoneID       int          `json:"zone_id"`
	ZoneStatus   int          `json:"zone_status"`
	Created      int64        `json:"created"`
	Updated      int64        `json:"updated"`
	Favorite     bool         `json:"favorite"`
	Notification int          `json:"notification"`
	RoomID       string       `json:"room_id"`
	DeviceID     string       `json:"device_id"`
}

// StatusField is one typed entry of a channel status vector.
type StatusField struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// StatusVector is the ordered, UI-ready status of a channel. Field
// order is stable per channel type.
type StatusVector []StatusField

// Get returns the value of the named field and whether it is present.
func (v StatusVector) Get(name string) (int, bool) {
	for _, f := range v {
		if f.Type == name {
			return f.Value, true
		}
	}
	return 0, false
}

// ToRaw converts a status vector back into the raw key/value form the
// encoder accepts, so a previously encoded vector can be re-encoded
// without change.
func (v StatusVector) ToRaw() map[string]int {
	raw := make(map[string]int, len(v))
	for _, f := range v {
		raw[f.Type] = f.Value
	}
	return raw
}

// DeviceView is a device with its channels, shaped for bus payloads
// and the full-state snapshot.
type DeviceView struct {
	Device
	Signal   int       `json:"signal"`
	Channels []Channel `json:"channels"`
}

// JoinInfo is what the radio driver reports when a node joins the
// mesh: node identity plus the endpoint/cluster/attribute inventory
// discovered during interview.
type JoinInfo struct {
	Addr        string
	Discovery   string
	GenericType string
	Info        NodeInfo
	Endpoints   []EndpointInfo
}

// NodeInfo is the protocol-level node descriptor inside JoinInfo.
type NodeInfo struct {
	IEEE                 string
	ID                   int
	BitField             string
	DescriptorCapability string
	LQI                  int
	MACCapability        string
	ManufacturerCode     string
	PowerType            int
	ServerMask           int
	RejoinStatus         int
}

// EndpointInfo describes one endpoint discovered during the join
// interview, including the initial attribute values.
type EndpointInfo struct {
	Endpoint    int
	Profile     int
	Device      int
	InClusters  []int
	OutClusters []int
	Clusters    []ClusterReport
}

// ClusterReport groups the initial attribute reports of one cluster.
type ClusterReport struct {
	Cluster    int
	Attributes []Report
}

// Report is a single attribute report, either from the join interview
// or from a live deviceAttributeReported event. Value is the raw
// textual value; scalar clusters parse it as an integer and the IAS
// zone cluster parses it as the zone-status flag word.
type Report struct {
	IEEE      string
	Endpoint  int
	Cluster   int
	Attribute int
	Expire    int64
	Name      string
	Type      string
	Data      string
	Value     string
}

// SecurityBinding identifies a newly classified security-relevant
// channel that must be registered with the alarm engine.
type SecurityBinding struct {
	ChannelID   string
	ChannelType int
	IEEE        string
}

// ChannelUpdate is the durable result of one attribute ingestion,
// published to the buses after commit.
type ChannelUpdate struct {
	ID      string       `json:"id"`
	Status  StatusVector `json:"status"`
	Updated int64        `json:"updated"`
}

// IngestResult carries everything the orchestrator needs after an
// attribute report has been committed: the published update plus the
// channel context for notification and door-shadow decisions.
type IngestResult struct {
	Update       ChannelUpdate
	ChannelID    string
	ChannelType  int
	ChannelName  string
	RoomID       string
	Notification int
	ZoneStatus   int
	Alarm        bool // report came from the IAS zone cluster
	Changed      bool // status vector was re-derived; publish the update
}

// ChannelInfoUpdate is the caller-editable subset of a channel row.
type ChannelInfoUpdate struct {
	Name         string       `json:"name"`
	Status       StatusVector `json:"status"`
	ZoneStatus   int          `json:"zone_status"`
	Favorite     bool         `json:"favorite"`
	Notification int          `json:"notification"`
	RoomID       string       `json:"room_id"`
}

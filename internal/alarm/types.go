package alarm

import "github.com/dicomiot/dhome-core/internal/device"

// Rule types stored in rules.type. Types 1-5 are the system rules
// seeded at provisioning; type 0 is a user-defined scene.
const (
	TypeScene        = 0
	TypeArm          = 1
	TypeDisarm       = 2
	TypeAtHome       = 3
	TypeSOS          = 4
	TypeDoorReminder = 5
)

// Rule is one automation rule or alarm mode.
type Rule struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     int    `json:"status"`
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	UserID     string `json:"user_id"`
	HomegateID string `json:"homegate_id"`
	Type       int    `json:"type"`
	Favorite   int    `json:"favorite"`
}

// Condition holds the JSON condition documents of a rule.
type Condition struct {
	AutoMode      string `json:"auto_mode"`
	Timer         string `json:"timer"`
	AccessControl string `json:"access_control"`
}

// Action holds a rule's execution settings.
type Action struct {
	Delay              int    `json:"delay"`
	Rules              string `json:"rules"`
	ActiveNotification int    `json:"active_notification"`
}

// AlarmModeEntry binds a security sensor channel to an alarm-mode
// rule. ZoneStatus is the armed/disarmed state pushed to the sensor
// when the mode activates.
type AlarmModeEntry struct {
	RuleID     string `json:"-"`
	ChannelID  string `json:"channel_id"`
	IEEE       string `json:"ieee"`
	ZoneStatus int    `json:"zone_status"`
}

// BindChannelEntry binds a remote-control channel to an alarm-mode
// rule so its button presses drive mode transitions.
type BindChannelEntry struct {
	RuleID      string `json:"-"`
	ChannelID   string `json:"channel_id"`
	ChannelIEEE string `json:"channel_ieee"`
	ChannelType int    `json:"channel_type"`
}

// ActionChannelEntry is an actuator the rule drives when it fires.
// Status carries the drive parameters, e.g. siren volume and duration.
type ActionChannelEntry struct {
	RuleID        string              `json:"-"`
	ChannelID     string              `json:"channel_id"`
	ChannelIcon   string              `json:"channel_icon"`
	ChannelIEEE   string              `json:"channel_ieee"`
	ChannelType   int                 `json:"channel_type"`
	ChannelStatus device.StatusVector `json:"channel_status"`
}

// RuleView is a rule with its conditions and actions, shaped for bus
// payloads and the full-state snapshot.
type RuleView struct {
	Rule
	Condition      *Condition           `json:"condition,omitempty"`
	Action         *Action              `json:"action,omitempty"`
	AlarmModes     []AlarmModeEntry     `json:"alarm_modes,omitempty"`
	BindChannels   []BindChannelEntry   `json:"bind_channels,omitempty"`
	ActionChannels []ActionChannelEntry `json:"action_channels,omitempty"`
}

// ZoneCommand tells the radio driver to arm or disarm one sensor zone.
type ZoneCommand struct {
	ChannelID  string
	IEEE       string
	ZoneStatus int
}

// SirenCommand tells the radio driver to sound one siren.
type SirenCommand struct {
	IEEE     string
	Duration int
	Level    int
}

// RunResult is the outcome of executing a rule: the mode that was
// activated plus the hardware commands the caller must issue.
type RunResult struct {
	Rule   *Rule
	Zones  []ZoneCommand
	Sirens []SirenCommand
}

// Reminder is one door-left-open reminder due for notification.
type Reminder struct {
	RuleID    string
	RuleName  string
	ChannelID string
	Name      string
	Status    int
	Updated   int64
	RoomID    string
}

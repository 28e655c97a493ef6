package device

// ModelInfo is one entry of the static model classification table:
// what a node that reports this model identifier is, and how its
// channels are typed and named.
type ModelInfo struct {
	ChannelType int
	Model       string
	Name        string
}

// modelTable maps the basic-cluster model identifier (cluster 0,
// attribute 5) to device classification. A joining device whose model
// is not listed here is rolled back rather than left half-classified.
var modelTable = map[string]ModelInfo{
	"DH-SW01": {ChannelType: TypeGeneric, Model: "DH-SW01", Name: "Công tắc"},
	"DH-DS01": {ChannelType: TypeDoor, Model: "DH-DS01", Name: "Cảm biến cửa"},
	"DH-MS01": {ChannelType: TypePIR, Model: "DH-MS01", Name: "Cảm biến chuyển động"},
	"DH-SS01": {ChannelType: TypeSmoke, Model: "DH-SS01", Name: "Cảm biến khói"},
	"DH-WL01": {ChannelType: TypeWaterleak, Model: "DH-WL01", Name: "Cảm biến rò nước"},
	"DH-RC01": {ChannelType: TypeRemote, Model: "DH-RC01", Name: "Điều khiển báo động"},
	"DH-SB01": {ChannelType: TypeSOSButton, Model: "DH-SB01", Name: "Nút khẩn cấp"},
	"DH-SR01": {ChannelType: TypeSiren, Model: "DH-SR01", Name: "Còi báo động"},
	"DH-PP01": {ChannelType: TypePIRPet, Model: "DH-PP01", Name: "Cảm biến chuyển động (thú cưng)"},
	"DH-ES01": {ChannelType: TypeEnvironment, Model: "DH-ES01", Name: "Cảm biến nhiệt độ, độ ẩm"},
}

// LookupModel returns the classification for a model identifier.
func LookupModel(model string) (ModelInfo, bool) {
	info, ok := modelTable[model]
	return info, ok
}

// isSecurityType reports whether the alarm engine binds channels of
// this type into the Armed/AtHome/SOS system rules on classification.
func isSecurityType(channelType int) bool {
	switch channelType {
	case TypeDoor, TypePIR, TypeSmoke, TypeWaterleak, TypePIRPet,
		TypeRemote, TypeSiren:
		return true
	}
	return false
}

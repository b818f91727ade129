package model

// Label is the classification assigned to an address. Besides the constants
// below, any AWS service name from the prefix table is a valid label.
type Label string

const (
	LabelInternal Label = "internal-network"
	LabelInternet Label = "internet"
	LabelUnknown  Label = "unknown"
)

// FlowRecord is one flow-log observation for a network interface.
type FlowRecord struct {
	Timestamp   string
	InterfaceID string
	SrcAddr     string
	DstAddr     string
	SrcPort     string
	DstPort     string
	Protocol    string
	Packets     uint64
	Bytes       uint64
	Action      string
	LogStatus   string
}

// PrefixEntry is a single published AWS IP range.
type PrefixEntry struct {
	IPPrefix           string `json:"ip_prefix"`
	Region             string `json:"region"`
	Service            string `json:"service"`
	NetworkBorderGroup string `json:"network_border_group"`
}

// TaggedFlowRecord is a FlowRecord annotated with the labels of both endpoints.
type TaggedFlowRecord struct {
	FlowRecord
	SrcTag Label
	DstTag Label
}

package extractor

import (
	"strconv"

	"github.com/google/gopacket/layers"
)

// ProtocolName renders an IANA protocol number ("6") as its name ("TCP").
// Values that are not a known protocol number are returned unchanged.
func ProtocolName(protocol string) string {
	n, err := strconv.ParseUint(protocol, 10, 8)
	if err != nil {
		return protocol
	}
	name := layers.IPProtocol(n).String()
	if name == "" || name == "UnknownIPProtocol" {
		return protocol
	}
	return name
}

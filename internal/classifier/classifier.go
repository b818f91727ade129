package classifier

import (
	"fmt"
	"net/netip"
	"strings"

	"FlowSpectra/internal/model"
)

type serviceRange struct {
	prefix  netip.Prefix
	service model.Label
}

// Classifier labels addresses as internal, an AWS service, or internet.
type Classifier struct {
	internal netip.Prefix
	ranges   []serviceRange
	skipped  []string
}

// New builds a classifier for the internal CIDR and the prefix table. Table
// order is kept: the first range containing an address wins. Entries whose
// prefix does not parse are skipped and reported by Skipped.
func New(internalCIDR string, table []model.PrefixEntry) (*Classifier, error) {
	internal, err := netip.ParsePrefix(strings.TrimSpace(internalCIDR))
	if err != nil {
		return nil, fmt.Errorf("invalid internal network '%s': %w", internalCIDR, err)
	}

	c := &Classifier{
		internal: internal.Masked(),
		ranges:   make([]serviceRange, 0, len(table)),
	}
	for _, entry := range table {
		p, err := netip.ParsePrefix(strings.TrimSpace(entry.IPPrefix))
		if err != nil || entry.Service == "" {
			c.skipped = append(c.skipped, entry.IPPrefix)
			continue
		}
		c.ranges = append(c.ranges, serviceRange{prefix: p.Masked(), service: model.Label(entry.Service)})
	}
	return c, nil
}

// Classify returns the label for addr. It never fails: an address that does
// not parse is labelled unknown.
func (c *Classifier) Classify(addr string) model.Label {
	ip, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return model.LabelUnknown
	}
	ip = ip.Unmap()

	if c.internal.Contains(ip) {
		return model.LabelInternal
	}
	for _, r := range c.ranges {
		if r.prefix.Contains(ip) {
			return r.service
		}
	}
	return model.LabelInternet
}

// Ranges returns the number of usable prefix entries.
func (c *Classifier) Ranges() int {
	return len(c.ranges)
}

// Skipped returns the prefix strings that could not be parsed.
func (c *Classifier) Skipped() []string {
	return c.skipped
}

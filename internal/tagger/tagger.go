package tagger

import "FlowSpectra/internal/model"

// Classifier labels a single address.
type Classifier interface {
	Classify(addr string) model.Label
}

// TagAll labels the source and destination of every record. Output order
// matches input order.
func TagAll(records []model.FlowRecord, c Classifier) []model.TaggedFlowRecord {
	tagged := make([]model.TaggedFlowRecord, len(records))
	for i, rec := range records {
		tagged[i] = model.TaggedFlowRecord{
			FlowRecord: rec,
			SrcTag:     c.Classify(rec.SrcAddr),
			DstTag:     c.Classify(rec.DstAddr),
		}
	}
	return tagged
}

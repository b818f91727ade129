package sink

import (
	"context"
	"fmt"

	"FlowSpectra/internal/config"
	"FlowSpectra/internal/factory"
	"FlowSpectra/internal/model"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func init() {
	factory.RegisterSink("nats", func(def config.SinkDef) (model.Sink, error) {
		return NewNATSSink(def.NATS)
	})
}

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSSink publishes each tagged flow as a protobuf Struct message.
type NATSSink struct {
	nc      Publisher
	subject string
}

// NewNATSSink connects to the NATS server from cfg.
func NewNATSSink(cfg config.NATSConfig) (*NATSSink, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	log.Info("Connected to NATS server", "url", url, "subject", cfg.Subject)
	return NewNATSSinkWithPublisher(nc, cfg.Subject), nil
}

// NewNATSSinkWithPublisher wraps an existing connection.
func NewNATSSinkWithPublisher(nc Publisher, subject string) *NATSSink {
	return &NATSSink{nc: nc, subject: subject}
}

// Name returns the sink type.
func (s *NATSSink) Name() string {
	return "nats"
}

// Write publishes one message per record.
func (s *NATSSink) Write(ctx context.Context, records []model.TaggedFlowRecord) error {
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := Encode(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		if err := s.nc.Publish(s.subject, data); err != nil {
			return fmt.Errorf("failed to publish record %d: %w", i, err)
		}
	}
	log.Info("Published tagged flows", "count", len(records), "subject", s.subject)
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

// Encode serializes a tagged record as a protobuf Struct. Field names match
// the tagged table columns.
func Encode(rec model.TaggedFlowRecord) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"timestamp":    rec.Timestamp,
		"interface_id": rec.InterfaceID,
		"srcaddr":      rec.SrcAddr,
		"dstaddr":      rec.DstAddr,
		"srcport":      rec.SrcPort,
		"dstport":      rec.DstPort,
		"protocol":     rec.Protocol,
		"packets":      rec.Packets,
		"bytes":        rec.Bytes,
		"action":       rec.Action,
		"srcaddr_tag":  string(rec.SrcTag),
		"dstaddr_tag":  string(rec.DstTag),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

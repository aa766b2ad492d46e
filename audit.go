package lmsauth

import (
	"io"

	"github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/rs/zerolog"
)

// AuditEvent is one security-relevant record emitted by the Authority.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that exposes events on a buffered channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZerologSink returns a sink logging events through logger.
func NewZerologSink(logger zerolog.Logger) *audit.ZerologSink {
	return audit.NewZerologSink(logger)
}

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// StreamSink writes one JSON object per line, tagged with "type", for a supervising process.
type StreamSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStreamSink writes to w (typically os.Stdout).
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{enc: json.NewEncoder(w)}
}

func (s *StreamSink) Name() string { return "stream" }

type tagged struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *StreamSink) SendTrade(_ context.Context, t Trade) error {
	return s.write(tagged{Type: "trade", Data: t})
}

func (s *StreamSink) SendWallet(_ context.Context, w Wallet) error {
	return s.write(tagged{Type: "wallet", Data: w})
}

func (s *StreamSink) write(v tagged) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(v)
}

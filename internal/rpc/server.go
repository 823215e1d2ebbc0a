package rpc

import (
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/BullionBear/aggbook/internal/publisher"
	"github.com/BullionBear/aggbook/internal/xlog"
)

// Server adapts a publisher.Publisher to BookSummaryServiceServer: every
// subscriber call gets its own conflating subscription, so a slow RPC client
// never backs up another.
type Server struct {
	pub *publisher.Publisher
	log xlog.Logger
}

// NewServer builds a BookSummaryServiceServer backed by pub.
func NewServer(pub *publisher.Publisher, log xlog.Logger) *Server {
	return &Server{pub: pub, log: log}
}

// StreamBookSummary subscribes to pub and forwards every summary to stream
// until the client disconnects or the server shuts the stream down.
func (s *Server) StreamBookSummary(_ *emptypb.Empty, stream BookSummaryService_StreamBookSummaryServer) error {
	ch, unsubscribe := s.pub.Subscribe()
	defer unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case summary, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(convertSummary(summary)); err != nil {
				s.log.Warn("stream send failed, dropping subscriber", xlog.Err(err))
				return err
			}
		}
	}
}

func convertSummary(s *publisher.Summary) *Summary {
	out := &Summary{
		Spread: s.Spread,
		Bids:   make([]Level, len(s.Bids)),
		Asks:   make([]Level, len(s.Asks)),
	}
	for i, l := range s.Bids {
		out.Bids[i] = Level{Exchange: l.Exchange, Price: l.Price, Amount: l.Amount}
	}
	for i, l := range s.Asks {
		out.Asks[i] = Level{Exchange: l.Exchange, Price: l.Price, Amount: l.Amount}
	}
	return out
}

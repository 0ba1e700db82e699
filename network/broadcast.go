package network

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Luismorlan/pow_ledger/metrics"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Concurrent calls in flight per broadcast.
const MAX_FANOUT = 16

// Broadcast sends payload to endpoint on every peer concurrently, each call
// bounded by timeout. Failures are logged and counted, never returned, and
// never retried. Returns how many peers accepted the call.
func Broadcast(ctx context.Context, endpoint string, payload interface{}, peers []Peer, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) int {
	if log == nil {
		log = zap.NewNop()
	}
	results := make([]bool, len(peers))
	g := new(errgroup.Group)
	g.SetLimit(MAX_FANOUT)
	for i := range peers {
		i := i
		peer := peers[i]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			var reply json.RawMessage
			err := peer.Conn.Invoke(cctx, service.FullMethod(endpoint), payload, &reply, service.CallOptions()...)
			if err == nil {
				results[i] = true
				return nil
			}
			switch status.Code(err) {
			case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
				m.BroadcastFailed(endpoint)
				log.Warn("broadcast failed",
					zap.String("peer", peer.String()),
					zap.String("endpoint", endpoint),
					zap.Error(fmt.Errorf("%w: %v", model.ErrPeerUnreachable, err)))
			default:
				// The peer answered, it just did not want the payload.
				log.Debug("peer declined broadcast",
					zap.String("peer", peer.String()),
					zap.String("endpoint", endpoint),
					zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}

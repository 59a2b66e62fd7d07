package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/avsync/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Sender and receiver state changes, errors, endpoint transitions and ffmpeg exits",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"endpoint-state": events.EndpointStateChangedEvent{},
		"sender-state":   events.SenderStateChangedEvent{},
		"sender-error":   events.SenderErrorEvent{},
		"receiver-state": events.ReceiverStateChangedEvent{},
		"receiver-error": events.ReceiverErrorEvent{},
		"process-exited": events.ProcessExitedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		stop := s.eventBus.Forward(eventCh)
		defer stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

package workers

import (
	"context"
	"dm-relay/contract"
	"dm-relay/domain/event"
	"log/slog"
)

// BroadcastFanout delivers presence events to every open connection,
// identified or not.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. A sink that cannot keep up loses
// the event; the next presence change carries a full snapshot anyway.
type BroadcastFanout struct {
	Log            *slog.Logger
	Broadcasts     chan event.Event
	TelemetryEvent chan event.Event
	conns          contract.SinkProvider
}

func NewBroadcastFanout(log *slog.Logger, conns contract.SinkProvider,
	broadcasts, telemetryEvent chan event.Event) *BroadcastFanout {
	return &BroadcastFanout{Log: log, conns: conns, Broadcasts: broadcasts, TelemetryEvent: telemetryEvent}
}

func (w *BroadcastFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.Broadcasts:
			w.Fanout(ctx, evt)
			select {
			case w.TelemetryEvent <- evt:
			default:
				w.Log.Debug("Observability telemetry event lost")
			}
		case <-ctx.Done():
			w.Log.Debug("Context done, stopping broadcast fan-out")
			return nil
		}
	}
}

// Fanout resolves the current connection set on every event, so
// connections opened after the worker started still receive broadcasts.
func (w *BroadcastFanout) Fanout(ctx context.Context, evt event.Event) {
	for _, sink := range w.conns.Sinks() {
		if err := sink.Consume(ctx, evt); err != nil {
			w.Log.Debug("Broadcast dropped for one connection", "event", evt.Name(), "error", err)
		}
	}
}

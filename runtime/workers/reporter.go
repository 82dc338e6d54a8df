package workers

import (
	"context"
	"dm-relay/domain/event"
	"dm-relay/observability"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ReporterWorker logs a stats snapshot at a fixed interval, enriched
// with process memory and CPU figures. It also drains the lossy
// telemetry channel fed by the broadcast fan-out.
type ReporterWorker struct {
	log       *slog.Logger
	stats     *observability.Stats
	telemetry <-chan event.Event
	interval  time.Duration
}

func NewReporterWorker(log *slog.Logger, stats *observability.Stats,
	telemetry <-chan event.Event, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, stats: stats, telemetry: telemetry, interval: interval}
}

func (w *ReporterWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	broadcastsSeen := uint64(0)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Reporter stopped")
			return nil
		case evt := <-w.telemetry:
			broadcastsSeen++
			w.log.Debug("Broadcast observed", "event", evt.Name())
		case <-ticker.C:
			w.report(p, broadcastsSeen)
		}
	}
}

func (w *ReporterWorker) report(p *process.Process, broadcastsSeen uint64) {
	stats := w.stats.GetLatest()

	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "err", err)
		return
	}

	w.log.Info("Relay stats",
		"connections", stats.OpenConnections,
		"online", stats.RegisteredUsers,
		"relayed", stats.MessagesRelayed,
		"replayed", stats.MessagesReplayed,
		"events_dropped", stats.EventsDropped,
		"broadcasts_seen", broadcastsSeen,
		"rss_mb", rss/1024/1024,
		"cpu_percent", cpu,
	)
}

// selfStats retrieves memory and CPU figures for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}

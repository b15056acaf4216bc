package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"link-tracker/internal/domain"
	"link-tracker/internal/enrichment"
	"link-tracker/internal/metrics"
)

// Dispatcher fans captures out to a fixed pool of workers.
//
// Submit never blocks the visitor: when every worker is busy and the buffer
// is full the capture is written straight to a fallback file instead.
// Nothing inside the dispatcher returns an error to its caller or lets a
// panic escape a worker.
type Dispatcher struct {
	sink     Sink
	geo      enrichment.Geolocator
	fallback *FallbackWriter
	logger   *slog.Logger

	captures chan domain.Capture
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher starts workers goroutines reading a buffer of queueSize.
// A nil sink means every notification goes to the fallback directory.
func NewDispatcher(workers, queueSize int, sink Sink, geo enrichment.Geolocator, fallback *FallbackWriter, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:     sink,
		geo:      geo,
		fallback: fallback,
		logger:   logger,
		captures: make(chan domain.Capture, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Submit queues a capture. It reports false when the capture was dead-lettered.
func (d *Dispatcher) Submit(c domain.Capture) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.closed {
		select {
		case d.captures <- c:
			metrics.NotificationQueueDepth.Set(float64(len(d.captures)))
			return true
		default:
		}
	}

	metrics.RecordNotification("dropped")
	d.writeFallback(KindDropped, c.Hit.IP, DroppedRecord{Reason: "dispatcher queue full", Hit: hitRecord(c)})
	return false
}

// Close stops accepting captures and waits for the queue to drain.
// When ctx expires first, in-flight sink calls are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.captures)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("notification queue not drained: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for c := range d.captures {
		metrics.NotificationQueueDepth.Set(float64(len(d.captures)))
		d.safeNotify(id, c)
	}
}

func (d *Dispatcher) safeNotify(id int, c domain.Capture) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordNotification("panic")
			d.logger.Error("Notification worker recovered from panic", "worker", id, "slug", c.Slug, "panic", r)
		}
	}()
	d.Notify(d.ctx, c)
}

// Notify derives geo, client and VPN details for a capture and delivers it
// synchronously. Workers call it; it is exported for direct use in tests and tools.
func (d *Dispatcher) Notify(ctx context.Context, c domain.Capture) {
	geo := d.geo.Lookup(ctx, c.Hit.IP)
	vpn := enrichment.EvaluateVPN(geo)
	details := Details{
		Capture: c,
		Geo:     geo,
		UA:      enrichment.ParseUserAgent(c.Hit.UA),
		VPN:     &vpn,
	}
	payload := BuildPayload(details)

	if d.sink == nil {
		metrics.RecordNotification("no_sink")
		d.writeFallback(KindNoSink, c.Hit.IP, NoSinkRecord{
			Payload: payload,
			Geo:     details.Geo,
			VPN:     details.VPN,
			UA:      details.UA,
			Hit:     hitRecord(c),
		})
		return
	}

	err := d.sink.Send(ctx, payload)
	var statusErr *StatusError
	switch {
	case err == nil:
		metrics.RecordNotification("sent")
	case errors.As(err, &statusErr):
		metrics.RecordNotification("sink_rejected")
		d.logger.Warn("Sink rejected notification", "slug", c.Slug, "status", statusErr.StatusCode)
		d.writeFallback(KindRejected, c.Hit.IP, RejectedRecord{
			StatusCode: statusErr.StatusCode,
			RespText:   statusErr.Body,
			Payload:    payload,
		})
	default:
		metrics.RecordNotification("sink_error")
		d.logger.Warn("Sink unreachable", "slug", c.Slug, "error", err)
		d.writeFallback(KindError, c.Hit.IP, ErrorRecord{Error: err.Error(), Payload: payload})
	}
}

func (d *Dispatcher) writeFallback(kind, ip string, doc any) {
	path, err := d.fallback.Write(kind, ip, doc)
	if err != nil {
		d.logger.Error("Failed to write notification fallback", "kind", kind, "error", err)
		return
	}
	d.logger.Debug("Notification written to disk", "path", path)
}

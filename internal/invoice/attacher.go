package invoice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/storage"
)

// Recorder is the slice of the repository the attacher needs.
type Recorder interface {
	SetInvoiceResult(ctx context.Context, orderID, url, status string) error
}

const (
	maxAttempts    = 3
	attemptTimeout = 15 * time.Second
)

// Attacher renders and stores invoices off the request path. Each order gets
// up to maxAttempts tries; after that its invoice status is set to failed and
// the order itself stays untouched.
type Attacher struct {
	renderer   Renderer
	sink       storage.Sink
	recorder   Recorder
	letterhead Letterhead
	log        zerolog.Logger

	queue chan domain.Order
	wg    sync.WaitGroup
	sleep func(time.Duration)
}

func NewAttacher(renderer Renderer, sink storage.Sink, recorder Recorder, lh Letterhead, log zerolog.Logger) *Attacher {
	return &Attacher{
		renderer:   renderer,
		sink:       sink,
		recorder:   recorder,
		letterhead: lh,
		log:        log,
		queue:      make(chan domain.Order, 256),
		sleep:      time.Sleep,
	}
}

func (a *Attacher) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for o := range a.queue {
			a.process(o)
		}
	}()
}

// Stop drains the queue and waits for the worker to finish.
func (a *Attacher) Stop() {
	close(a.queue)
	a.wg.Wait()
}

// Enqueue never blocks the caller. A full queue marks the invoice failed
// right away rather than stalling order creation.
func (a *Attacher) Enqueue(o domain.Order) {
	select {
	case a.queue <- o:
	default:
		a.log.Warn().Str("orderId", o.ID).Msg("invoice queue full, marking failed")
		a.record(o.ID, "", domain.InvoiceFailed)
	}
}

func (a *Attacher) process(o domain.Order) {
	data, contentType, err := a.renderer.Render(a.letterhead, o)
	if err != nil {
		a.log.Error().Err(err).Str("orderId", o.ID).Msg("invoice render failed")
		a.record(o.ID, "", domain.InvoiceFailed)
		return
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
		url, err := a.sink.Store(ctx, data, contentType)
		cancel()
		if err == nil {
			a.record(o.ID, url, domain.InvoiceAttached)
			return
		}
		a.log.Warn().Err(err).Str("orderId", o.ID).Int("attempt", attempt).Msg("invoice upload failed")
		if attempt < maxAttempts {
			a.sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
	}

	a.record(o.ID, "", domain.InvoiceFailed)
}

func (a *Attacher) record(orderID, url, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()
	if err := a.recorder.SetInvoiceResult(ctx, orderID, url, status); err != nil {
		a.log.Error().Err(err).Str("orderId", orderID).Msg("recording invoice result failed")
	}
}

package realtime

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/metrics"
	"github.com/convo/internal/model"
	"github.com/convo/internal/tracing"
)

// Publisher доставляет событие в pub/sub транспорт. Доставка best-effort.
type Publisher interface {
	Publish(ctx context.Context, b Broadcast) error
}

// Notifier отправляет уведомление о новом сообщении одному получателю.
type Notifier interface {
	Notify(ctx context.Context, p model.NewMessagePayload) error
}

// PublisherFunc позволяет использовать функцию как Publisher.
type PublisherFunc func(ctx context.Context, b Broadcast) error

func (f PublisherFunc) Publish(ctx context.Context, b Broadcast) error { return f(ctx, b) }

const notifyTimeout = 10 * time.Second

// Dispatcher выполняет эффекты после коммита транзакции.
// Ошибки логируются и считаются в метриках, но никогда не возвращаются вызывающему:
// основная запись уже зафиксирована.
type Dispatcher struct {
	pub      Publisher
	notifier Notifier
	// async=true: уведомления уходят в фоне, Dispatch не ждёт их.
	async bool
	wg    sync.WaitGroup
}

// NewDispatcher создаёт диспетчер. pub и notifier могут быть nil — тогда соответствующие эффекты пропускаются.
func NewDispatcher(pub Publisher, notifier Notifier) *Dispatcher {
	return &Dispatcher{pub: pub, notifier: notifier, async: true}
}

// NewSyncDispatcher — то же, но уведомления отправляются синхронно (тесты, воркеры).
func NewSyncDispatcher(pub Publisher, notifier Notifier) *Dispatcher {
	return &Dispatcher{pub: pub, notifier: notifier}
}

func (d *Dispatcher) Dispatch(ctx context.Context, fx Effects) {
	if d == nil || fx.Empty() {
		return
	}
	for _, b := range fx.Broadcasts {
		d.publish(ctx, b)
	}
	if len(fx.Notifications) == 0 || d.notifier == nil {
		return
	}
	if !d.async {
		d.notifyAll(ctx, fx.Notifications)
		return
	}
	// Контекст запроса отменится раньше, чем уйдут уведомления; трасса сохраняется.
	d.wg.Add(1)
	go func(list []model.NewMessagePayload) {
		defer d.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		d.notifyAll(nctx, list)
	}(fx.Notifications)
}

// Wait дожидается фоновых уведомлений (при остановке процесса).
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) publish(ctx context.Context, b Broadcast) {
	if d.pub == nil {
		return
	}
	ctx, span := tracing.Start(ctx, "realtime.publish",
		attribute.String("realtime.channel", b.Channel),
		attribute.String("realtime.event", b.Event),
	)
	defer span.End()
	if err := d.pub.Publish(ctx, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		metrics.RealtimePublished.WithLabelValues(b.Event, "error").Inc()
		logger.Errorf("realtime publish event=%s channel=%s: %v", b.Event, b.Channel, err)
		return
	}
	metrics.RealtimePublished.WithLabelValues(b.Event, "ok").Inc()
}

func (d *Dispatcher) notifyAll(ctx context.Context, list []model.NewMessagePayload) {
	for _, p := range list {
		if err := d.notify(ctx, p); err != nil {
			metrics.Notifications.WithLabelValues("error").Inc()
			logger.Errorf("notify user=%s message=%s: %v", p.RecipientID, p.Data.ID, err)
			continue
		}
		metrics.Notifications.WithLabelValues("ok").Inc()
	}
}

func (d *Dispatcher) notify(ctx context.Context, p model.NewMessagePayload) error {
	ctx, span := tracing.Start(ctx, "realtime.notify", attribute.String("message.id", p.Data.ID))
	defer span.End()
	err := d.notifier.Notify(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "notify failed")
	}
	return err
}

// MultiPublisher публикует в несколько транспортов; возвращает первую ошибку.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, b Broadcast) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, b); err != nil && first == nil {
			first = err
		}
	}
	return first
}

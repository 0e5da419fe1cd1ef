package otel

import (
	"context"
	"errors"
	"fmt"
	"sort"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads. *challengeAuth.Engine satisfies it.
type Source interface {
	EventCounts() map[string]uint64
	AuditDropped() uint64
}

var _ Source = (*challengeAuth.Engine)(nil)

type Exporter struct {
	source       Source
	registration metric.Registration
	events       metric.Int64ObservableCounter
	auditDropped metric.Int64ObservableCounter
	attrs        map[string]metric.ObserveOption
}

// NewExporter registers the instruments on meter. Close unregisters them.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	events, err := meter.Int64ObservableCounter(
		"challengeauth.events",
		metric.WithDescription("Authentication and authorization events by name."),
	)
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	auditDropped, err := meter.Int64ObservableCounter(
		"challengeauth.audit.dropped",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}

	exporter := &Exporter{
		source:       source,
		events:       events,
		auditDropped: auditDropped,
		attrs:        make(map[string]metric.ObserveOption, len(challengeAuth.EventNames)),
	}
	for _, name := range challengeAuth.EventNames {
		exporter.attrs[name] = metric.WithAttributes(attribute.String("event", name))
	}

	registration, err := meter.RegisterCallback(exporter.observe, events, auditDropped)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	counts := e.source.EventCounts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opt, ok := e.attrs[name]
		if !ok {
			opt = metric.WithAttributes(attribute.String("event", name))
		}
		observer.ObserveInt64(e.events, int64(counts[name]), opt)
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

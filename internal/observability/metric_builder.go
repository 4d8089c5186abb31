package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// instrumentSet creates the instruments of one metrics group. It keeps the
// first creation error and remembers observable instruments so the group's
// callback can be registered over all of them at once.
type instrumentSet struct {
	meter       metric.Meter
	observables []metric.Observable
	err         error
}

func newInstrumentSet(mt metric.Meter) *instrumentSet {
	return &instrumentSet{meter: mt}
}

func (s *instrumentSet) counter(name, desc, unit string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	return c
}

// seconds creates a duration histogram bucketed by durationBucketBoundaries.
func (s *instrumentSet) seconds(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	s.track(name, err)

	return h
}

func (s *instrumentSet) upDownCounter(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	return c
}

func (s *instrumentSet) gauge(name, desc, unit string) metric.Int64ObservableGauge {
	g, err := s.meter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	if err == nil {
		s.observables = append(s.observables, g)
	}

	return g
}

func (s *instrumentSet) observableCounter(name, desc, unit string) metric.Int64ObservableCounter {
	c, err := s.meter.Int64ObservableCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.track(name, err)

	if err == nil {
		s.observables = append(s.observables, c)
	}

	return c
}

func (s *instrumentSet) track(name string, err error) {
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("create %s: %w", name, err)
	}
}

// register reports the first creation error, or registers cb over every
// observable instrument of the set. A nil cb only reports the error.
func (s *instrumentSet) register(cb metric.Callback) error {
	if s.err != nil {
		return s.err
	}

	if cb == nil || len(s.observables) == 0 {
		return nil
	}

	_, err := s.meter.RegisterCallback(cb, s.observables...)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}

	return nil
}

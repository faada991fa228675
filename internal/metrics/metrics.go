// Package metrics provides Prometheus instrumentation for the API and
// the artifact pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the service.
//
// All metrics use the talktrace_ prefix.
type Metrics struct {
	// RequestsTotal counts API requests by route and status code.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks API latency distribution by route.
	RequestDuration *prometheus.HistogramVec

	// EnvelopeStreamsTotal counts envelope-encrypted artifact streams
	// by artifact kind and outcome.
	EnvelopeStreamsTotal *prometheus.CounterVec

	// EnvelopeBytesTotal counts ciphertext bytes streamed to clients.
	EnvelopeBytesTotal prometheus.Counter

	// MeetingsJoined counts successfully joined meetings.
	MeetingsJoined prometheus.Counter

	// MeetingsDiscarded counts meetings auto-discarded for lack of audio.
	MeetingsDiscarded prometheus.Counter
}

// New creates service metrics registered on the given registerer.
// Panics if registration fails (expected during initialization only).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talktrace_requests_total",
				Help: "Total API requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "talktrace_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		EnvelopeStreamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "talktrace_envelope_streams_total",
				Help: "Envelope-encrypted artifact streams by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		EnvelopeBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "talktrace_envelope_bytes_total",
				Help: "Ciphertext bytes streamed to clients",
			},
		),
		MeetingsJoined: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "talktrace_meetings_joined_total",
				Help: "Successfully joined meetings",
			},
		),
		MeetingsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "talktrace_meetings_discarded_total",
				Help: "Meetings auto-discarded because the call ended without audio",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.EnvelopeStreamsTotal,
		m.EnvelopeBytesTotal,
		m.MeetingsJoined,
		m.MeetingsDiscarded,
	)
	return m
}

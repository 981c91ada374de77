// Package metrics holds the prometheus collectors shared by server and
// client sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PendingEnvelopes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickwire_pending_envelopes",
		Help: "Envelopes held until the replica reaches their tick",
	}, []string{"queue"})

	PendingDegraded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickwire_pending_degraded",
		Help: "1 while a pending queue is above its watermark",
	}, []string{"queue"})

	RejectedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwire_rejected_messages_total",
		Help: "Inbound messages dropped because they failed to decode",
	}, []string{"side", "kind"})

	EncodeFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwire_encode_faults_total",
		Help: "Records a codec refused to serialize",
	}, []string{"kind"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwire_messages_sent_total",
		Help: "Messages handed to the transport",
	}, []string{"side", "kind"})

	BytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickwire_bytes_sent_total",
		Help: "Payload bytes handed to the transport",
	}, []string{"side"})

	PlaceholdersSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickwire_placeholders_spawned_total",
		Help: "Client entities allocated for server ids referenced before their spawn",
	})

	ServerTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickwire_server_tick",
		Help: "Current authoritative tick",
	})
)

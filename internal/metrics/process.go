// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_proc_terminate_total",
		Help: "Signals sent to encoder process groups by signal and outcome",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_proc_wait_total",
		Help: "Encoder process exits observed during termination",
	}, []string{"result"})

	// EncoderStartTotal counts encoder process starts by codec and result.
	EncoderStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_encoder_start_total",
		Help: "Total number of encoder starts",
	}, []string{"codec", "result"})

	// EncoderExitTotal counts encoder exits by reason.
	EncoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_encoder_exit_total",
		Help: "Total number of encoder exits",
	}, []string{"reason"})
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records how a terminated process exited.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}

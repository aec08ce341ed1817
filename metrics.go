// Copyright (C) 2024 The REPE Authors.

package repe

import "expvar"

// serverMetrics record per-process Server activity counters, exposed via
// expvar so they show up alongside the rest of a binary's diagnostics.
type serverMetrics struct {
	connsAccepted expvar.Int
	connsActive   expvar.Int
	requestsIn    expvar.Int
	requestsErr   expvar.Int
	notifiesIn    expvar.Int

	emap *expvar.Map
}

var rootServerMetrics = newServerMetrics()

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{emap: new(expvar.Map)}
	m.emap.Set("connections_accepted", &m.connsAccepted)
	m.emap.Set("connections_active", &m.connsActive)
	m.emap.Set("requests_in", &m.requestsIn)
	m.emap.Set("requests_failed", &m.requestsErr)
	m.emap.Set("notifies_in", &m.notifiesIn)
	return m
}

// clientMetrics record per-process Client activity counters.
type clientMetrics struct {
	requestsOut expvar.Int
	requestsErr expvar.Int
	notifiesOut expvar.Int
	requestsPending expvar.Int
	timeouts    expvar.Int

	emap *expvar.Map
}

var rootClientMetrics = newClientMetrics()

func newClientMetrics() *clientMetrics {
	m := &clientMetrics{emap: new(expvar.Map)}
	m.emap.Set("requests_out", &m.requestsOut)
	m.emap.Set("requests_failed", &m.requestsErr)
	m.emap.Set("notifies_out", &m.notifiesOut)
	m.emap.Set("requests_pending", &m.requestsPending)
	m.emap.Set("timeouts", &m.timeouts)
	return m
}

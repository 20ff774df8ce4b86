package agentops

// DiagnosticReport is a point-in-time snapshot of SDK health, returned by
// Diagnose without blocking on the exporter or either span processor.
type DiagnosticReport struct {
	Initialized         bool
	Authenticated       bool
	ActiveTraces        int64
	ExportSuccess       int64
	ExportFailure       int64
	ExportReject        int64
	QueueDropped        int64
	LastError           string
	ActiveInstrumentors []string
}

// Diagnose takes a consistent snapshot of SDK state under a read lock,
// never blocking on the exporter or processors.
func (s *SDK) Diagnose() DiagnosticReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.state.Load()
	report := DiagnosticReport{
		Initialized:  state != stateUninit && state != stateDegraded,
		ActiveTraces: s.activeTraces.Load(),
	}

	if s.exporterClient != nil {
		counters := s.exporterClient.Counters()
		report.ExportSuccess = counters.Successes
		report.ExportFailure = counters.AuthFailures + counters.TransportFailures
		report.ExportReject = counters.Rejected
		report.Authenticated = s.exporterClient.Authenticated()
	}
	if s.provider != nil && s.provider.batch != nil {
		report.QueueDropped = s.provider.batch.Dropped()
	}
	if s.lastError != nil {
		report.LastError = s.lastError.Error()
	}
	if s.registry != nil {
		report.ActiveInstrumentors = s.registry.Active()
	}

	return report
}

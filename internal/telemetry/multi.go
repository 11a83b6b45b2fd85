package telemetry

// MultiSink fans one event record out to several sinks, so the audit
// database and the Valkey export can both be active at once.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink combines sinks, skipping any nil entries so callers can
// pass optional sinks unconditionally.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Record(rec EventRecord) {
	for _, s := range m.sinks {
		s.Record(rec)
	}
}

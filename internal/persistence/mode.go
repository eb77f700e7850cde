package persistence

// Mode is the gateway's persistence state.
type Mode int

const (
	// Normal writes straight through to storage.
	Normal Mode = iota
	// Recovery queues every write and probes storage on a timer.
	Recovery
	// Flushing drains the queue after a successful probe.
	Flushing
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Recovery:
		return "recovery"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

type event int

const (
	eventWriteFailed event = iota
	eventProbeSucceeded
	eventProbeFailed
	eventFlushFailed
	eventFlushCompleted
)

func (e event) String() string {
	switch e {
	case eventWriteFailed:
		return "write_failed"
	case eventProbeSucceeded:
		return "probe_succeeded"
	case eventProbeFailed:
		return "probe_failed"
	case eventFlushFailed:
		return "flush_failed"
	case eventFlushCompleted:
		return "flush_completed"
	default:
		return "unknown"
	}
}

// nextMode is the transition table. Events that do not apply to the
// current mode leave it unchanged.
func nextMode(m Mode, e event) Mode {
	switch m {
	case Normal:
		if e == eventWriteFailed {
			return Recovery
		}
	case Recovery:
		if e == eventProbeSucceeded {
			return Flushing
		}
	case Flushing:
		switch e {
		case eventFlushFailed, eventWriteFailed:
			return Recovery
		case eventFlushCompleted:
			return Normal
		}
	}
	return m
}

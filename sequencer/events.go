package sequencer

import "fmt"

// EventKind identifies a delegate notification.
type EventKind int

const (
	EventProgress EventKind = iota
	EventFinished
	EventEpilogueState
	EventDecodeError
	EventExportProgress
	EventExportFinished
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventFinished:
		return "finished"
	case EventEpilogueState:
		return "epilogue-state"
	case EventDecodeError:
		return "decode-error"
	case EventExportProgress:
		return "export-progress"
	case EventExportFinished:
		return "export-finished"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is pushed to observers of a render. Which fields are meaningful
// depends on Kind.
type Event struct {
	Kind     EventKind
	Fraction float64
	State    EpilogueState
	Err      error
	// Path is the export destination for export events.
	Path string
}

func (e Event) String() string {
	switch e.Kind {
	case EventProgress, EventExportProgress:
		return fmt.Sprintf("%s %.3f", e.Kind, e.Fraction)
	case EventEpilogueState:
		return fmt.Sprintf("%s %s", e.Kind, e.State)
	case EventDecodeError:
		return fmt.Sprintf("%s %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

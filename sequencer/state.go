package sequencer

// EpilogueState tracks where the sequencer is with respect to epilogue
// insertion at the end of the main sequence.
type EpilogueState int32

const (
	NoEpilogue EpilogueState = iota
	WillDoEpilogue
	WillDoFinalEpilogue
	DoingEpilogue
)

// String returns the state name.
func (s EpilogueState) String() string {
	switch s {
	case NoEpilogue:
		return "NoEpilogue"
	case WillDoEpilogue:
		return "WillDoEpilogue"
	case WillDoFinalEpilogue:
		return "WillDoFinalEpilogue"
	case DoingEpilogue:
		return "DoingEpilogue"
	default:
		return "Unknown"
	}
}

// Status is an immutable snapshot of a sequencer's playback state. A new one
// is published after every pull, so it can be read from any goroutine.
type Status struct {
	Index    int           // current main-sequence track
	Offset   int           // frames consumed in the current track or epilogue
	State    EpilogueState // epilogue state
	Epilogue string        // pending or playing epilogue, if any
	Final    bool          // Epilogue is the final epilogue
	Played   int           // main-sequence frames into the current pass
	Extra    int           // epilogue frames played in the current pass
	Passes   int           // completed loop passes
	Produced int64         // frames produced since the last rewind
	Fraction float64       // Played / total frames of one pass
	Finished bool
	// FinalDone is set once the final epilogue has been played.
	FinalDone bool
}

package awgstream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ATaylorCEngFIET/awgstream/llfifo"
	"github.com/oklog/ulid/v2"
)

// StreamState enumerates the phases of one streaming run. Streaming is the
// only steady state and self-loops; Failed is terminal.
type StreamState int

// The states a StreamController passes through.
const (
	StateUninitialized StreamState = iota
	StateReset
	StateReady
	StateStreaming
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateReset:
		return "Reset"
	case StateReady:
		return "Ready"
	case StateStreaming:
		return "Streaming"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("StreamState(%d)", int(s))
}

// InsufficientCapacityError is the fatal condition raised when the transmit
// FIFO cannot accept a complete frame. Partial frames are never written: the
// core needs the full payload before the length commit, and a short write
// would corrupt the stream.
type InsufficientCapacityError struct {
	Needed    int // words required for one full frame
	Available int // words of vacancy the core reported
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("not enough space in TX FIFO: need %d words, have %d words",
		e.Needed, e.Available)
}

// TransmissionFaultError is the fatal condition raised when the core reports
// an error status after a frame commit. Status holds the raw bits.
type TransmissionFaultError struct {
	Status uint32
}

func (e *TransmissionFaultError) Error() string {
	return fmt.Sprintf("FIFO transmission error occurred, status 0x%08x", e.Status)
}

// StreamStatus is one per-frame progress report, JSON-encoded for the
// status publisher.
type StreamStatus struct {
	RunID      string
	State      string
	Frames     uint64
	Vacancy    uint32
	StatusBits uint32
	Time       time.Time
}

// StreamController drives one continuous streaming session: it owns the
// sample buffer and the peripheral handle, and pushes the buffer into the
// transmit path one full frame per iteration, observing the core's vacancy
// and fault signals.
type StreamController struct {
	card    llfifo.Fifoer
	buffer  []uint32
	state   StreamState
	runID   ulid.ULID
	frames  uint64
	updates chan<- StatusUpdate
}

// NewStreamController returns a controller owning buffer for the duration of
// the run. The buffer is read-only thereafter: it is replayed, not
// regenerated, on every iteration. Its length must be at least 3 samples.
func NewStreamController(card llfifo.Fifoer, buffer []uint32) (*StreamController, error) {
	if len(buffer) < 3 {
		return nil, &InvalidLengthError{N: len(buffer)}
	}
	return &StreamController{card: card, buffer: buffer, runID: ulid.Make()}, nil
}

// RunID returns the unique identifier of this run, for log and status
// correlation.
func (sc *StreamController) RunID() string { return sc.runID.String() }

// State returns the controller's current state.
func (sc *StreamController) State() StreamState { return sc.state }

// FramesSent returns how many frames have been committed so far.
func (sc *StreamController) FramesSent() uint64 { return sc.frames }

// SetUpdateChannel directs per-frame status reports to updates, normally the
// input of RunMonitor. Reports are best-effort and never block the loop.
func (sc *StreamController) SetUpdateChannel(updates chan<- StatusUpdate) {
	sc.updates = updates
}

// Prepare returns the core to a known empty state: reset, clear every
// latched interrupt bit, and give the logic 1 ms to settle. The post-reset
// status is read once; a nonzero value goes to the problem log but is not
// fatal, because the completion bits latch again on some cores before the
// first frame is sent.
func (sc *StreamController) Prepare() error {
	if err := sc.card.Reset(); err != nil {
		sc.state = StateFailed
		return err
	}
	sc.state = StateReset
	if err := sc.card.IntClear(0xffffffff); err != nil {
		sc.state = StateFailed
		return err
	}
	time.Sleep(time.Millisecond)
	status, err := sc.card.Status()
	if err != nil {
		sc.state = StateFailed
		return err
	}
	if status != 0 {
		ProblemLogger.Printf("run %s: FIFO status 0x%08x after reset, expected 0", sc.runID, status)
	}
	sc.state = StateReady
	return nil
}

// Stream pushes the buffer into the transmit path as one frame per
// iteration, indefinitely. It returns nil only when the abort channel
// closes; every other return is fatal (*InsufficientCapacityError,
// *TransmissionFaultError, or a device I/O error) and leaves the controller
// in StateFailed. Latched faults are cleared on the core before returning,
// so a later run starts from a known state.
func (sc *StreamController) Stream(abort <-chan struct{}) error {
	if sc.state != StateReady {
		return fmt.Errorf("cannot stream from state %v, want %v", sc.state, StateReady)
	}
	sc.state = StateStreaming

	nwords := len(sc.buffer)
	frameBytes := uint32(nwords * WordBytes)
	for {
		select {
		case <-abort:
			sc.state = StateReady
			return nil
		default:
		}

		vacancy, err := sc.card.TxVacancy()
		if err != nil {
			sc.state = StateFailed
			return err
		}
		// The whole frame must fit before any word is pushed. Exactly
		// nwords of vacancy is sufficient.
		if int(vacancy) < nwords {
			sc.state = StateFailed
			return &InsufficientCapacityError{Needed: nwords, Available: int(vacancy)}
		}

		// Push order is sample order: the core reconstructs the
		// sequence from it.
		for _, word := range sc.buffer {
			if err := sc.card.TxPutWord(word); err != nil {
				sc.state = StateFailed
				return err
			}
		}
		if err := sc.card.TxSetLength(frameBytes); err != nil {
			sc.state = StateFailed
			return err
		}
		sc.frames++

		status, err := sc.card.Status()
		if err != nil {
			sc.state = StateFailed
			return err
		}
		if status&llfifo.IntErrorMask != 0 {
			// Leave the core clean for whatever run comes next.
			if cerr := sc.card.IntClear(llfifo.IntErrorMask); cerr != nil {
				ProblemLogger.Printf("run %s: could not clear fault bits: %s", sc.runID, cerr)
			}
			sc.state = StateFailed
			return &TransmissionFaultError{Status: status}
		}
		sc.publish(vacancy, status)
	}
}

// publish offers one status report to the update channel without ever
// blocking the streaming loop. Reports are dropped when nobody listens.
func (sc *StreamController) publish(vacancy, status uint32) {
	if sc.updates == nil {
		return
	}
	body, err := json.Marshal(StreamStatus{
		RunID:      sc.runID.String(),
		State:      sc.state.String(),
		Frames:     sc.frames,
		Vacancy:    vacancy,
		StatusBits: status,
		Time:       time.Now(),
	})
	if err != nil {
		return
	}
	select {
	case sc.updates <- StatusUpdate{Tag: "STATUS", Message: body}:
	default:
	}
}

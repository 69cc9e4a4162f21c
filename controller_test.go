package awgstream

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/ATaylorCEngFIET/awgstream/llfifo"
	"github.com/stretchr/testify/assert"
)

// testFifo is a scriptable Fifoer that records every call a controller
// makes. Successive TxVacancy and Status calls consume the scripted answers;
// the last answer repeats forever.
type testFifo struct {
	vacancy  []uint32
	status   []uint32
	pushed   []uint32
	commits  []uint32
	cleared  []uint32
	resets   int
	nVacancy int
	nStatus  int
	onCommit func(*testFifo)
}

func (f *testFifo) Reset() error {
	f.resets++
	return nil
}

func (f *testFifo) IntClear(mask uint32) error {
	f.cleared = append(f.cleared, mask)
	return nil
}

func (f *testFifo) TxVacancy() (uint32, error) {
	i := f.nVacancy
	if i >= len(f.vacancy) {
		i = len(f.vacancy) - 1
	}
	f.nVacancy++
	return f.vacancy[i], nil
}

func (f *testFifo) TxPutWord(word uint32) error {
	f.pushed = append(f.pushed, word)
	return nil
}

func (f *testFifo) TxSetLength(lengthBytes uint32) error {
	f.commits = append(f.commits, lengthBytes)
	if f.onCommit != nil {
		f.onCommit(f)
	}
	return nil
}

func (f *testFifo) Status() (uint32, error) {
	i := f.nStatus
	if i >= len(f.status) {
		i = len(f.status) - 1
	}
	f.nStatus++
	return f.status[i], nil
}

func (f *testFifo) Close() error { return nil }

func rampBuffer(t *testing.T, n int) []uint32 {
	t.Helper()
	buf := make([]uint32, n)
	if err := GenerateRamp(buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func quietLogs(t *testing.T) {
	t.Helper()
	saved := ProblemLogger
	ProblemLogger = log.New(io.Discard, "", 0)
	t.Cleanup(func() { ProblemLogger = saved })
}

func TestStreamInsufficientCapacity(t *testing.T) {
	quietLogs(t)
	fifo := &testFifo{vacancy: []uint32{255}, status: []uint32{0}}
	sc, err := NewStreamController(fifo, rampBuffer(t, 256))
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Prepare(); err != nil {
		t.Fatal(err)
	}

	err = sc.Stream(nil)
	var icerr *InsufficientCapacityError
	if !errors.As(err, &icerr) {
		t.Fatalf("Stream returned %v, want InsufficientCapacityError", err)
	}
	if icerr.Needed != 256 || icerr.Available != 255 {
		t.Errorf("have needed=%d available=%d, want needed=256 available=255",
			icerr.Needed, icerr.Available)
	}
	if len(fifo.pushed) != 0 {
		t.Errorf("%d words were pushed into a too-full FIFO, want 0", len(fifo.pushed))
	}
	if sc.State() != StateFailed {
		t.Errorf("controller state is %v, want %v", sc.State(), StateFailed)
	}
}

func TestStreamFaultAfterCommit(t *testing.T) {
	quietLogs(t)
	buffer := rampBuffer(t, 256)
	// First status answer goes to Prepare; the second reports a transmit
	// overrun after the commit.
	fifo := &testFifo{vacancy: []uint32{300}, status: []uint32{0, llfifo.IntTPOE}}
	sc, err := NewStreamController(fifo, buffer)
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Prepare(); err != nil {
		t.Fatal(err)
	}

	err = sc.Stream(nil)
	var tferr *TransmissionFaultError
	if !errors.As(err, &tferr) {
		t.Fatalf("Stream returned %v, want TransmissionFaultError", err)
	}
	if tferr.Status != llfifo.IntTPOE {
		t.Errorf("fault status is 0x%08x, want 0x%08x", tferr.Status, llfifo.IntTPOE)
	}
	// Prepare clears everything; the fault path clears the error bits.
	assert.Equal(t, []uint32{0xffffffff, llfifo.IntErrorMask}, fifo.cleared)
	// The whole frame went out in order, exactly once, before the fault.
	assert.Equal(t, buffer, fifo.pushed)
	assert.Equal(t, []uint32{256 * WordBytes}, fifo.commits)
	if fifo.nVacancy != 1 {
		t.Errorf("vacancy was queried %d times, want 1: no iteration after a fault", fifo.nVacancy)
	}
	if sc.State() != StateFailed {
		t.Errorf("controller state is %v, want %v", sc.State(), StateFailed)
	}
}

// TestStreamExactVacancy pins the acceptance boundary: a vacancy of exactly
// one frame is enough, and streaming proceeds.
func TestStreamExactVacancy(t *testing.T) {
	quietLogs(t)
	buffer := rampBuffer(t, 256)
	abort := make(chan struct{})
	fifo := &testFifo{vacancy: []uint32{256}, status: []uint32{0}}
	fifo.onCommit = func(f *testFifo) {
		if len(f.commits) == 2 {
			close(abort)
		}
	}
	sc, err := NewStreamController(fifo, buffer)
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Prepare(); err != nil {
		t.Fatal(err)
	}

	if err := sc.Stream(abort); err != nil {
		t.Fatalf("Stream with exact vacancy failed: %s", err)
	}
	if sc.FramesSent() != 2 {
		t.Errorf("have %d frames, want 2", sc.FramesSent())
	}
	if len(fifo.pushed) != 512 {
		t.Errorf("have %d pushed words, want 512", len(fifo.pushed))
	}
	if sc.State() != StateReady {
		t.Errorf("controller state is %v after abort, want %v", sc.State(), StateReady)
	}
}

func TestStreamRequiresReady(t *testing.T) {
	fifo := &testFifo{vacancy: []uint32{512}, status: []uint32{0}}
	sc, err := NewStreamController(fifo, rampBuffer(t, 16))
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Stream(nil); err == nil {
		t.Error("Stream without Prepare succeeded, want error")
	}
}

func TestNewControllerShortBuffer(t *testing.T) {
	fifo := &testFifo{vacancy: []uint32{512}, status: []uint32{0}}
	_, err := NewStreamController(fifo, make([]uint32, 2))
	var ilerr *InvalidLengthError
	if !errors.As(err, &ilerr) {
		t.Errorf("NewStreamController returned %v, want InvalidLengthError", err)
	}
}

// A nonzero post-reset status is logged, not fatal: some cores latch the
// completion bits again before the first frame.
func TestPrepareToleratesResetStatus(t *testing.T) {
	quietLogs(t)
	fifo := &testFifo{vacancy: []uint32{512}, status: []uint32{llfifo.IntTC}}
	sc, err := NewStreamController(fifo, rampBuffer(t, 16))
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Prepare(); err != nil {
		t.Errorf("Prepare failed on nonzero reset status: %s", err)
	}
	if sc.State() != StateReady {
		t.Errorf("controller state is %v, want %v", sc.State(), StateReady)
	}
}

// TestStreamNoHardware runs the full loop against the simulated FIFO with an
// injected fault on the third frame.
func TestStreamNoHardware(t *testing.T) {
	quietLogs(t)
	fake, err := llfifo.NewNoHardware(512)
	if err != nil {
		t.Fatal(err)
	}
	fake.FaultAfter = 3
	sc, err := NewStreamController(fake, rampBuffer(t, 256))
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Prepare(); err != nil {
		t.Fatal(err)
	}

	err = sc.Stream(nil)
	var tferr *TransmissionFaultError
	if !errors.As(err, &tferr) {
		t.Fatalf("Stream returned %v, want TransmissionFaultError", err)
	}
	if sc.FramesSent() != 3 {
		t.Errorf("have %d frames, want 3", sc.FramesSent())
	}
	if fake.FramesCommitted() != 3 {
		t.Errorf("fake committed %d frames, want 3", fake.FramesCommitted())
	}
	// The controller must leave the core with its error bits cleared.
	status, err := fake.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status&llfifo.IntErrorMask != 0 {
		t.Errorf("error bits 0x%08x still latched after the run", status&llfifo.IntErrorMask)
	}
}

func TestStreamPublishesStatus(t *testing.T) {
	quietLogs(t)
	buffer := rampBuffer(t, 16)
	abort := make(chan struct{})
	fifo := &testFifo{vacancy: []uint32{16}, status: []uint32{0}}
	fifo.onCommit = func(f *testFifo) {
		if len(f.commits) == 3 {
			close(abort)
		}
	}
	sc, err := NewStreamController(fifo, buffer)
	if err != nil {
		t.Fatal(err)
	}
	// Capacity 1: later reports must be dropped, never block the loop.
	updates := make(chan StatusUpdate, 1)
	sc.SetUpdateChannel(updates)
	if err := sc.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := sc.Stream(abort); err != nil {
		t.Fatal(err)
	}

	update := <-updates
	if update.Tag != "STATUS" {
		t.Errorf("update tag is %q, want STATUS", update.Tag)
	}
	var status StreamStatus
	if err := json.Unmarshal(update.Message, &status); err != nil {
		t.Fatalf("status message is not valid JSON: %s", err)
	}
	if status.RunID != sc.RunID() {
		t.Errorf("status RunID is %s, want %s", status.RunID, sc.RunID())
	}
	if status.Frames != 1 {
		t.Errorf("first status reports %d frames, want 1", status.Frames)
	}
	if status.Vacancy != 16 {
		t.Errorf("status vacancy is %d, want 16", status.Vacancy)
	}
}

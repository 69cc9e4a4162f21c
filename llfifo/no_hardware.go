package llfifo

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// NoHardware is a drop-in replacement for LlFifo (implements Fifoer) that
// requires no hardware, for testing and simulated runs. The transmit FIFO is
// emulated: pushes consume vacancy, a length commit drains the committed
// words, and pushing past capacity latches the transmit overrun bit like the
// real core does.
type NoHardware struct {
	depth           int    // transmit FIFO capacity, in words
	words           int    // words currently held
	status          uint32 // latched interrupt status bits
	isOpen          bool
	wasReset        bool
	framesCommitted int

	// FaultAfter, if positive, latches a transmit overrun fault once this
	// many frames have been committed. Used to exercise the fatal path.
	FaultAfter int
}

// NewNoHardware generates and returns a simulated FIFO core with the given
// transmit capacity in words.
func NewNoHardware(depth int) (*NoHardware, error) {
	if depth < 1 {
		return nil, fmt.Errorf("NewNoHardware: depth %d must be positive", depth)
	}
	return &NoHardware{depth: depth, isOpen: true}, nil
}

// Reset empties the simulated FIFO and clears all latched status bits.
func (f *NoHardware) Reset() error {
	if !f.isOpen {
		return fmt.Errorf("NoHardware.Reset: not open")
	}
	f.words = 0
	f.status = 0
	f.framesCommitted = 0
	f.wasReset = true
	return nil
}

// IntClear clears the latched status bits selected by mask.
func (f *NoHardware) IntClear(mask uint32) error {
	if !f.isOpen {
		return fmt.Errorf("NoHardware.IntClear: not open")
	}
	f.status &^= mask
	return nil
}

// TxVacancy returns the free space remaining, in words.
func (f *NoHardware) TxVacancy() (uint32, error) {
	if !f.isOpen {
		return 0, fmt.Errorf("NoHardware.TxVacancy: not open")
	}
	return uint32(f.depth - f.words), nil
}

// TxPutWord accepts one word. Pushing with zero vacancy latches the transmit
// overrun bit and errors, mirroring the undefined behavior of the real core.
func (f *NoHardware) TxPutWord(word uint32) error {
	if !f.isOpen {
		return fmt.Errorf("NoHardware.TxPutWord: not open")
	}
	if f.words >= f.depth {
		f.status |= IntTPOE
		return fmt.Errorf("NoHardware.TxPutWord: transmit FIFO full (%d words)", f.depth)
	}
	f.words++
	return nil
}

// TxSetLength commits a frame boundary. Committing more bytes than are held
// latches the transmit size error bit; the mismatch is reported through
// Status, as on hardware, not as a call error.
func (f *NoHardware) TxSetLength(lengthBytes uint32) error {
	if !f.isOpen {
		return fmt.Errorf("NoHardware.TxSetLength: not open")
	}
	nwords := int(lengthBytes) / wordBytes
	if nwords > f.words {
		f.status |= IntTSE
		return nil
	}
	f.words -= nwords
	f.framesCommitted++
	f.status |= IntTC
	if f.FaultAfter > 0 && f.framesCommitted >= f.FaultAfter {
		f.status |= IntTPOE
	}
	return nil
}

// Status returns the latched status bits.
func (f *NoHardware) Status() (uint32, error) {
	if !f.isOpen {
		return 0, fmt.Errorf("NoHardware.Status: not open")
	}
	return f.status, nil
}

// Close errors if already closed.
func (f *NoHardware) Close() error {
	if !f.isOpen {
		return fmt.Errorf("NoHardware.Close: already closed")
	}
	f.isOpen = false
	return nil
}

// FramesCommitted returns how many frame boundaries have been committed
// since the last reset.
func (f *NoHardware) FramesCommitted() int {
	return f.framesCommitted
}

// Inspect prints the simulator state and returns the status bits.
func (f *NoHardware) Inspect() uint32 {
	spew.Println(f)
	return f.status
}

// Package llfifo provides an interface to AXI4-Stream FIFO character
// devices: read/write registers of the core's AXI4-Lite slave, push words
// into the transmit path, commit frame boundaries, and clear latched
// interrupt status. Exports object LlFifo for general use. Internally, that
// object works with the lower-level fifoDevice.
package llfifo

// Fifoer is the interface satisfied by LlFifo, and by NoHardware for tests
// and simulated runs.
type Fifoer interface {
	Reset() error
	IntClear(mask uint32) error
	TxVacancy() (uint32, error)
	TxPutWord(word uint32) error
	TxSetLength(lengthBytes uint32) error
	Status() (uint32, error)
	Close() error
}

// LlFifo is the high-level object used to manipulate one AXI-Stream FIFO
// core through its device driver.
type LlFifo struct {
	device *fifoDevice
}

// NewLlFifo generates and returns a new LlFifo object. The devnum value is
// used to select among /dev/llfifo_user0, llfifo_user1, etc., if there is
// more than 1 core in the design. Usually, you'll use 0 here.
func NewLlFifo(devnum int) (*LlFifo, error) {
	dev, err := openFifoDevice(devnum)
	if err != nil {
		return nil, err
	}
	return &LlFifo{device: dev}, nil
}

// Reset returns the core to its initial empty state: both stream-path FIFOs
// and the AXI4-Stream interfaces.
func (f *LlFifo) Reset() error {
	if err := f.device.writeRegister(regSRR, resetKey); err != nil {
		return err
	}
	if err := f.device.writeRegister(regTDFR, resetKey); err != nil {
		return err
	}
	return f.device.writeRegister(regRDFR, resetKey)
}

// IntClear clears the latched interrupt status bits selected by mask. The
// ISR bits are write-one-to-clear.
func (f *LlFifo) IntClear(mask uint32) error {
	return f.device.writeRegister(regISR, mask)
}

// TxVacancy returns the free space in the transmit data FIFO, in words.
func (f *LlFifo) TxVacancy() (uint32, error) {
	return f.device.readRegister(regTDFV)
}

// TxPutWord enqueues one word on the transmit path. Behavior is undefined
// when the FIFO has no vacancy; callers must check TxVacancy first.
func (f *LlFifo) TxPutWord(word uint32) error {
	return f.device.writeRegister(regTDFD, word)
}

// TxSetLength writes the frame length in bytes to the transmit length
// register. This marks the frame boundary and starts the stream transfer.
func (f *LlFifo) TxSetLength(lengthBytes uint32) error {
	return f.device.writeRegister(regTLR, lengthBytes)
}

// Status returns the raw interrupt status register. Compare against
// IntErrorMask to detect transport-layer faults.
func (f *LlFifo) Status() (uint32, error) {
	return f.device.readRegister(regISR)
}

// Close the open file descriptor for this device.
func (f *LlFifo) Close() error {
	if f.device != nil {
		return f.device.Close()
	}
	return nil
}

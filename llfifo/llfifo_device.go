package llfifo

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Register map of the AXI4-Stream FIFO core (AXI4-Lite slave). Offsets are
// bytes from the base address the driver maps at offset 0 of the character
// device.
const (
	regISR  int64 = 0x00 // Interrupt status register
	regIER  int64 = 0x04 // Interrupt enable register
	regTDFR int64 = 0x08 // Transmit data FIFO reset
	regTDFV int64 = 0x0c // Transmit data FIFO vacancy (words)
	regTDFD int64 = 0x10 // Transmit data FIFO write port
	regTLR  int64 = 0x14 // Transmit length register (bytes)
	regRDFR int64 = 0x18 // Receive data FIFO reset
	regRDFO int64 = 0x1c // Receive data FIFO occupancy
	regRDFD int64 = 0x20 // Receive data FIFO read port
	regRLR  int64 = 0x24 // Receive length register
	regSRR  int64 = 0x28 // AXI4-Stream reset register
	regTDR  int64 = 0x2c // Transmit destination register

	// resetKey is the magic value the core requires in TDFR, RDFR, and SRR
	// to trigger the corresponding reset.
	resetKey uint32 = 0x000000a5

	// Interrupt status bits.
	IntRPURE uint32 = 0x80000000 // Receive packet underrun read error
	IntRPORE uint32 = 0x40000000 // Receive packet overrun read error
	IntRPUE  uint32 = 0x20000000 // Receive packet underrun error
	IntTPOE  uint32 = 0x10000000 // Transmit packet overrun error
	IntTC    uint32 = 0x08000000 // Transmit complete
	IntRC    uint32 = 0x04000000 // Receive complete
	IntTSE   uint32 = 0x02000000 // Transmit size error

	// IntErrorMask covers every status bit that reports a transport-layer
	// error, as opposed to normal busy/ready signaling.
	IntErrorMask uint32 = IntRPURE | IntRPORE | IntRPUE | IntTPOE | IntTSE
)

// wordBytes is the width of every register and transmit word, in bytes.
const wordBytes = 4

// EnumerateFifoDevices returns a list of FIFO device numbers that exist in
// the devfs. If /dev/llfifo_user0 exists and is a device file, then 0 is
// added to the list.
func EnumerateFifoDevices() (devices []int, err error) {
	MAXDEVICES := 8
	for id := 0; id < MAXDEVICES; id++ {
		fullname := fmt.Sprintf("/dev/llfifo_user%d", id)
		info, err := os.Stat(fullname)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return devices, err
		}
		if (info.Mode() & os.ModeDevice) == 0 {
			continue
		}
		devices = append(devices, id)
	}
	return devices, nil
}

// fifoDevice is the low-level register interface to one AXI-Stream FIFO
// core. The driver exposes the core's register block through a character
// device supporting positioned reads and writes; the base address binding
// happens in the device tree, not here.
type fifoDevice struct {
	FileUser   *os.File // talks to the FIFO core's register block
	validFiles bool
}

// Open the /dev/llfifo_user* file for a new fifoDevice object, if possible.
func openFifoDevice(devnum int) (dev *fifoDevice, err error) {
	dev = new(fifoDevice)
	fname := fmt.Sprintf("/dev/llfifo_user%d", devnum)
	if dev.FileUser, err = os.OpenFile(fname, os.O_RDWR, 0666); err != nil {
		return nil, err
	}
	dev.validFiles = true
	return dev, nil
}

// Close the open file descriptor for this device.
func (dev *fifoDevice) Close() (err error) {
	if dev.FileUser != nil {
		err = dev.FileUser.Close()
	}
	dev.validFiles = false
	return err
}

func (dev *fifoDevice) String() string {
	return fmt.Sprintf("device %s valid status: %v", dev.FileUser.Name(), dev.validFiles)
}

// Read a FIFO core register at the given offset.
func (dev *fifoDevice) readRegister(offset int64) (uint32, error) {
	result := make([]byte, wordBytes)
	n, err := dev.FileUser.ReadAt(result, offset)
	if n < wordBytes || err != nil {
		return 0, fmt.Errorf("could not read file %s offset: 0x%x", dev.FileUser.Name(), offset)
	}
	return binary.LittleEndian.Uint32(result[0:]), nil
}

// Write a uint32 to a FIFO core register at the given offset.
func (dev *fifoDevice) writeRegister(offset int64, value uint32) error {
	bytes := make([]byte, wordBytes)
	binary.LittleEndian.PutUint32(bytes, value)
	n, err := dev.FileUser.WriteAt(bytes, offset)
	if n < wordBytes || err != nil {
		return fmt.Errorf("could not write file %s offset: 0x%x, value: 0x%x", dev.FileUser.Name(), offset, value)
	}
	return nil
}

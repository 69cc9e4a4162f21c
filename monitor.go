package awgstream

// Contains the status monitor, which publishes JSON-encoded messages giving
// the latest streaming state. Observational only: nothing here can affect
// the control loop.

import (
	"fmt"

	zmq "github.com/pebbe/zmq4"
)

// StatusUpdate carries one message to be published on the status port.
type StatusUpdate struct {
	Tag     string
	Message []byte
}

// RunMonitor forwards any message from its input channel to a ZMQ publisher
// socket, so clients can watch a run without touching the hardware path. It
// terminates when the abort channel closes.
func RunMonitor(updates <-chan StatusUpdate, abort <-chan struct{}, portstatus int) error {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return err
	}
	defer pubSocket.Close()
	hostname := fmt.Sprintf("tcp://*:%d", portstatus)
	if err = pubSocket.Bind(hostname); err != nil {
		return err
	}

	for {
		select {
		case <-abort:
			return nil
		case update := <-updates:
			if _, err := pubSocket.SendMessage(update.Tag, update.Message); err != nil {
				return err
			}
		}
	}
}

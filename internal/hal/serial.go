package hal

import (
	"sync"

	"go.bug.st/serial"
)

// Serial is a HAL implementation for boards whose tick source is a
// companion microcontroller rather than this process's own clock: each
// incoming byte on the configured serial port is treated as one external
// tick pulse. This is the "periodic tick source" collaborator of spec §6
// when the scheduler is itself running hosted (e.g. driving a demo over a
// UART-connected board) instead of on the target silicon.
type Serial struct {
	PortName string
	BaudRate int

	mu     sync.Mutex
	port   serial.Port
	stopCh chan struct{}
}

// NewSerial returns a Serial HAL bound to portName at baud.
func NewSerial(portName string, baud int) *Serial {
	return &Serial{PortName: portName, BaudRate: baud}
}

func (s *Serial) Init() error {
	mode := &serial.Mode{BaudRate: s.BaudRate}
	port, err := serial.Open(s.PortName, mode)
	if err != nil {
		return err
	}
	s.port = port
	s.stopCh = make(chan struct{})
	return nil
}

func (s *Serial) DisableIRQ() State {
	s.mu.Lock()
	return struct{}{}
}

func (s *Serial) Restore(State) {
	s.mu.Unlock()
}

func (s *Serial) IdleCPU() {
	// The read loop in Start already blocks waiting for the next byte, so
	// there's nothing extra to idle on here.
}

func (s *Serial) Start(onTick func()) error {
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := s.port.Read(buf)
			if err != nil {
				return
			}
			for i := 0; i < n; i++ {
				select {
				case <-s.stopCh:
					return
				default:
					onTick()
				}
			}
		}
	}()
	return nil
}

func (s *Serial) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
		return
	default:
	}
	close(s.stopCh)
	if s.port != nil {
		_ = s.port.Close()
	}
}

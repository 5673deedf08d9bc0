package listen

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Settings is the subset of the live configuration the Supervisor reacts
// to: which transports are enabled, where they bind, and how many workers
// each gets.
type Settings struct {
	Addr       string
	EnableUDP  bool
	EnableTCP  bool
	ThreadCount int
}

// Supervisor owns the UDP and TCP listeners and starts, stops, or
// restarts them as Settings change, mirroring the enable_udp/enable_tcp
// diff-driven restart contract: a listener is (re)started whenever its
// enabled flag or bind settings change, and stopped outright when its
// flag goes false.
type Supervisor struct {
	Handler Handler
	Log     *zap.Logger

	mu       sync.Mutex
	current  Settings
	udpStop  context.CancelFunc
	tcpStop  context.CancelFunc
	udpDone  chan struct{}
	tcpDone  chan struct{}
}

// NewSupervisor returns a Supervisor with no listeners running; call
// Reload to start them.
func NewSupervisor(h Handler, log *zap.Logger) *Supervisor {
	return &Supervisor{Handler: h, Log: log}
}

// Reload brings the running listeners in line with next: starting,
// restarting, or stopping UDP/TCP as needed. It returns once any stopped
// listener has shut down, but does not wait for newly started listeners.
func (s *Supervisor) Reload(ctx context.Context, next Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	udpRestart := next.EnableUDP && (s.udpStop == nil || s.current.Addr != next.Addr || s.current.ThreadCount != next.ThreadCount)
	udpStopNeeded := s.udpStop != nil && (!next.EnableUDP || udpRestart)

	tcpRestart := next.EnableTCP && (s.tcpStop == nil || s.current.Addr != next.Addr || s.current.ThreadCount != next.ThreadCount)
	tcpStopNeeded := s.tcpStop != nil && (!next.EnableTCP || tcpRestart)

	if udpStopNeeded {
		s.udpStop()
		<-s.udpDone
		s.udpStop = nil
	}
	if tcpStopNeeded {
		s.tcpStop()
		<-s.tcpDone
		s.tcpStop = nil
	}

	if next.EnableUDP && (udpRestart || s.udpStop == nil) {
		lctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		l := &UDPListener{Addr: next.Addr, Workers: next.ThreadCount, Handler: s.Handler, Log: s.Log}
		go func() {
			defer close(done)
			if err := l.Run(lctx); err != nil {
				s.logger().Warn("udp listener stopped", zap.Error(err))
			}
		}()
		s.udpStop = cancel
		s.udpDone = done
	}

	if next.EnableTCP && (tcpRestart || s.tcpStop == nil) {
		lctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		l := &TCPListener{Addr: next.Addr, Workers: next.ThreadCount, Handler: s.Handler, Log: s.Log}
		go func() {
			defer close(done)
			if err := l.Run(lctx); err != nil {
				s.logger().Warn("tcp listener stopped", zap.Error(err))
			}
		}()
		s.tcpStop = cancel
		s.tcpDone = done
	}

	s.current = next
}

func (s *Supervisor) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Shutdown stops any running listeners and waits for them to exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.udpStop != nil {
		s.udpStop()
		<-s.udpDone
		s.udpStop = nil
	}
	if s.tcpStop != nil {
		s.tcpStop()
		<-s.tcpDone
		s.tcpStop = nil
	}
}

package relay

import (
	"time"

	"deedles.dev/wlexport/mainloop"
)

// source pumps the protocol server from a mainloop.Loop.
type source struct {
	inst *Instance
}

func (s *source) FD() int {
	return s.inst.server.Loop().FD()
}

func (s *source) Prepare() (time.Duration, bool) {
	s.inst.server.FlushClients()
	return -1, false
}

func (s *source) Check(revents mainloop.Events) bool {
	return revents != 0
}

func (s *source) Dispatch(revents mainloop.Events) bool {
	if revents&mainloop.In != 0 {
		err := s.inst.server.Dispatch(0)
		if err != nil {
			s.inst.logger.Error("dispatch protocol events", "err", err)
		}
		s.inst.server.FlushClients()
	}

	return revents&(mainloop.Err|mainloop.Hup) == 0
}

func (s *source) Priority() int {
	return s.inst.config.SourcePriority
}

func (s *source) CanRecurse() bool {
	return true
}

func (s *source) Name() string {
	return SourceName
}

package commun

import "github.com/Ankesh2004/go-commun/pkg/wire"

// Server answers state queries, accepts assigned files and serves reports.
type Server struct {
	*Engine
	cb ServerCallbacks
}

func NewServer(opts Options, cb ServerCallbacks) *Server {
	s := &Server{cb: cb.withDefaults()}
	s.Engine = newEngine(opts, s.cb.Callbacks, s)
	return s
}

func (s *Server) RspState(state State) bool {
	return s.SendByte(CmdRspState, byte(state))
}

func (s *Server) RspAssign(answer Answer) bool {
	return s.SendByte(CmdRspAssign, byte(answer))
}

// RspReport sends the report file at path to the client.
func (s *Server) RspReport(path string) bool {
	return s.SendFile(CmdRspReport, path)
}

func (s *Server) handleCommand(sess *session, f *wire.Frame) bool {
	switch f.Command {
	case CmdReqState:
		s.cb.OnReqState()
	case CmdReqAssign:
		sess.prepareRecv(f.Command, string(f.Payload))
	case CmdReqReport:
		s.cb.OnReqReport()
	default:
		return false
	}
	return true
}

func (s *Server) handleFile(cmd Command, name string, data []byte) bool {
	if cmd != CmdReqAssign {
		return false
	}
	if err := s.saveFile(name, data); err != nil {
		s.log.Warn("assigned file not saved", "err", err)
	}
	s.cb.OnReqAssign(name)
	return true
}

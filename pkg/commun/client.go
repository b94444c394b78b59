package commun

import "github.com/Ankesh2004/go-commun/pkg/wire"

// Client asks a Server for its state, assigns it files and fetches reports.
type Client struct {
	*Engine
	cb ClientCallbacks
}

func NewClient(opts Options, cb ClientCallbacks) *Client {
	c := &Client{cb: cb.withDefaults()}
	c.Engine = newEngine(opts, c.cb.Callbacks, c)
	return c
}

func (c *Client) ReqState() bool {
	return c.SendCommand(CmdReqState)
}

// ReqAssign sends the file at path to the server.
func (c *Client) ReqAssign(path string) bool {
	return c.SendFile(CmdReqAssign, path)
}

func (c *Client) ReqReport() bool {
	return c.SendCommand(CmdReqReport)
}

func (c *Client) handleCommand(s *session, f *wire.Frame) bool {
	switch f.Command {
	case CmdRspState:
		c.cb.OnRspState(State(firstByte(f.Payload)))
	case CmdRspAssign:
		c.cb.OnRspAssign(Answer(firstByte(f.Payload)))
	case CmdRspReport:
		s.prepareRecv(f.Command, string(f.Payload))
	default:
		return false
	}
	return true
}

func (c *Client) handleFile(cmd Command, name string, data []byte) bool {
	if cmd != CmdRspReport {
		return false
	}
	if err := c.saveFile(name, data); err != nil {
		c.log.Warn("report not saved", "err", err)
	}
	c.cb.OnRspReport(name)
	return true
}

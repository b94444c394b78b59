package commun

import "github.com/Ankesh2004/go-commun/pkg/wire"

type Command = wire.Command

// Request commands use the low byte, their responses the high byte.
const (
	CmdPing        Command = 0x0001
	CmdPong        Command = 0x0100
	CmdReqFragment Command = 0x0002
	CmdRspFragment Command = 0x0200
	CmdReqInteract Command = 0x0003
	CmdRspInteract Command = 0x0300
	CmdReqState    Command = 0x0004
	CmdRspState    Command = 0x0400
	CmdReqAssign   Command = 0x0005
	CmdRspAssign   Command = 0x0500
	CmdReqReport   Command = 0x0006
	CmdRspReport   Command = 0x0600
)

type Answer byte

const (
	Reject Answer = 0
	Accept Answer = 1
)

func (a Answer) String() string {
	if a == Accept {
		return "accept"
	}
	return "reject"
}

type State byte

const (
	StateInvalid State = 0
	StateReady   State = 1
	StateError   State = 2
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return "invalid"
}

// firstByte returns payload[0], or 0 for an empty payload.
func firstByte(payload []byte) byte {
	if len(payload) == 0 {
		return 0
	}
	return payload[0]
}

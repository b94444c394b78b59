package commun

// Callbacks are the notifications every engine raises. Nil fields are
// replaced with no-ops when the engine is built.
type Callbacks struct {
	OnStarted      func(addr string)
	OnStopped      func()
	OnConnected    func(remote string)
	OnDisconnected func()
	OnSent         func(size int, cmd Command)
	OnReceived     func(size int, cmd Command)
	OnReqInteract  func(Interact)
	OnRspInteract  func(Interact)
	// OnTransfer fires for every completed incoming fragmented transfer,
	// before the command specific handler.
	OnTransfer func(cmd Command, name string, data []byte)
}

func (c Callbacks) withDefaults() Callbacks {
	if c.OnStarted == nil {
		c.OnStarted = func(string) {}
	}
	if c.OnStopped == nil {
		c.OnStopped = func() {}
	}
	if c.OnConnected == nil {
		c.OnConnected = func(string) {}
	}
	if c.OnDisconnected == nil {
		c.OnDisconnected = func() {}
	}
	if c.OnSent == nil {
		c.OnSent = func(int, Command) {}
	}
	if c.OnReceived == nil {
		c.OnReceived = func(int, Command) {}
	}
	if c.OnReqInteract == nil {
		c.OnReqInteract = func(Interact) {}
	}
	if c.OnRspInteract == nil {
		c.OnRspInteract = func(Interact) {}
	}
	if c.OnTransfer == nil {
		c.OnTransfer = func(Command, string, []byte) {}
	}
	return c
}

type ClientCallbacks struct {
	Callbacks
	OnRspState  func(State)
	OnRspAssign func(Answer)
	// OnRspReport fires after the report file has been stored.
	OnRspReport func(name string)
}

func (c ClientCallbacks) withDefaults() ClientCallbacks {
	c.Callbacks = c.Callbacks.withDefaults()
	if c.OnRspState == nil {
		c.OnRspState = func(State) {}
	}
	if c.OnRspAssign == nil {
		c.OnRspAssign = func(Answer) {}
	}
	if c.OnRspReport == nil {
		c.OnRspReport = func(string) {}
	}
	return c
}

type ServerCallbacks struct {
	Callbacks
	OnReqState func()
	// OnReqAssign fires after the assigned file has been stored.
	OnReqAssign func(name string)
	OnReqReport func()
}

func (c ServerCallbacks) withDefaults() ServerCallbacks {
	c.Callbacks = c.Callbacks.withDefaults()
	if c.OnReqState == nil {
		c.OnReqState = func() {}
	}
	if c.OnReqAssign == nil {
		c.OnReqAssign = func(string) {}
	}
	if c.OnReqReport == nil {
		c.OnReqReport = func() {}
	}
	return c
}

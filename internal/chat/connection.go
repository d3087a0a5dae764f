package chat

// Connection is one live transport session. It is owned by the Registry;
// name, userID and hydrated are only touched from the engine loop or
// under the registry lock.
type Connection struct {
	id     string
	userID int
	name   string
	// hydrated is set once a history snapshot was queued; live message
	// frames are held back until then.
	hydrated bool
	send     chan []byte
	closed   bool
}

func newConnection(id string, queueSize int) *Connection {
	return &Connection{
		id:   id,
		send: make(chan []byte, queueSize),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// Outbound is drained by the transport writer. It is closed when the
// connection leaves the registry.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// enqueue never blocks. It reports false when the queue is full or closed.
func (c *Connection) enqueue(frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

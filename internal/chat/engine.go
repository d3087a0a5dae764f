package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"groupchat/internal/metrics"
	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

// MessageLog is the durable, append-only message store.
type MessageLog interface {
	// Append assigns id and created_at (never earlier than any message
	// already appended) and stores msg.
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	// ListChronological returns every message by created_at, then
	// insertion order.
	ListChronological(ctx context.Context) ([]models.Message, error)
}

type Options struct {
	QueueSize       int
	TypingWindow    time.Duration
	MaxMessageChars int
	StoreTimeout    time.Duration
	Clock           func() time.Time
}

func DefaultOptions() Options {
	return Options{
		QueueSize:       256,
		TypingWindow:    DefaultTypingWindow,
		MaxMessageChars: 2000,
		StoreTimeout:    5 * time.Second,
		Clock:           time.Now,
	}
}

type eventKind int

const (
	evConnect eventKind = iota
	evJoin
	evSend
	evTyping
	evHistory
	evDisconnect
	evReject
)

var eventNames = map[eventKind]string{
	evConnect:    "connect",
	evJoin:       "join",
	evSend:       "message",
	evTyping:     "typing",
	evHistory:    "history",
	evDisconnect: "disconnect",
	evReject:     "reject",
}

type event struct {
	kind   eventKind
	connID string
	userID int
	name   string
	body   string
	err    error
	reply  chan result
}

type result struct {
	conn     *Connection
	message  models.Message
	messages []models.Message
	err      error
}

// Engine is the single serialization point for room-wide events. Every
// operation is an event processed to completion by Run, persistence and
// enqueueing to every target included, before the next one starts.
type Engine struct {
	registry  *Registry
	log       MessageLog
	debouncer *Debouncer
	opts      Options

	events     chan event
	stopped    chan struct{}
	overflowed []string
}

func NewEngine(log MessageLog, opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.TypingWindow <= 0 {
		opts.TypingWindow = defaults.TypingWindow
	}
	if opts.MaxMessageChars <= 0 {
		opts.MaxMessageChars = defaults.MaxMessageChars
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaults.StoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}

	e := &Engine{
		registry: NewRegistry(opts.QueueSize),
		log:      log,
		opts:     opts,
		events:   make(chan event),
		stopped:  make(chan struct{}),
	}
	e.debouncer = NewDebouncer(opts.TypingWindow, WithClock(opts.Clock), WithExpiryHook(e.typingExpired))
	return e
}

func (e *Engine) typingExpired(name string) {
	metrics.TypingActive.Set(float64(len(e.debouncer.ActiveNames())))
	logger.Debug("Typing signal for %s expired", name)
}

// Run processes events until ctx is cancelled, then closes every
// connection's outbound queue.
func (e *Engine) Run(ctx context.Context) {
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			ev.reply <- e.handle(ctx, ev)
		}
	}
}

func (e *Engine) shutdown() {
	close(e.stopped)
	e.registry.closeAll()
	e.debouncer.Stop()
	metrics.ConnectionsActive.Set(0)
	metrics.OnlineUsers.Set(0)
	metrics.TypingActive.Set(0)
	logger.Info("Broadcast engine stopped")
}

// Connect registers a new connection. The transport drains the returned
// connection's Outbound queue.
func (e *Engine) Connect(ctx context.Context, connID string) (*Connection, error) {
	res := e.submit(ctx, event{kind: evConnect, connID: connID})
	return res.conn, res.err
}

// Join binds a presence name to the connection and announces presence.
func (e *Engine) Join(ctx context.Context, connID string, userID int, name string) error {
	return e.submit(ctx, event{kind: evJoin, connID: connID, userID: userID, name: name}).err
}

// Send persists a message from a joined connection and fans it out to
// every hydrated connection, the sender included.
func (e *Engine) Send(ctx context.Context, connID, body string) (models.Message, error) {
	res := e.submit(ctx, event{kind: evSend, connID: connID, body: body})
	return res.message, res.err
}

// Typing refreshes the sender's typing signal and notifies everyone else.
func (e *Engine) Typing(ctx context.Context, connID string) error {
	return e.submit(ctx, event{kind: evTyping, connID: connID}).err
}

// History enqueues the full message log to the connection. Live message
// frames only reach a connection after its first snapshot, and the read is
// sequenced with fan-out, so each message reaches it exactly once: in the
// snapshot or as a live message frame. Later calls resend the full log.
func (e *Engine) History(ctx context.Context, connID string) ([]models.Message, error) {
	res := e.submit(ctx, event{kind: evHistory, connID: connID})
	return res.messages, res.err
}

// Disconnect removes the connection and announces presence if its name
// went offline.
func (e *Engine) Disconnect(ctx context.Context, connID string) error {
	return e.submit(ctx, event{kind: evDisconnect, connID: connID}).err
}

// Reject reports a transport-side error (rate limiting, malformed frames)
// to the connection through its outbound queue.
func (e *Engine) Reject(ctx context.Context, connID string, cause error) error {
	return e.submit(ctx, event{kind: evReject, connID: connID, err: cause}).err
}

// Online returns the current Online Set.
func (e *Engine) Online() []string {
	return e.registry.Snapshot()
}

// TypingWindow is how long a typing signal lasts without a refresh.
func (e *Engine) TypingWindow() time.Duration {
	return e.debouncer.Window()
}

// IsTyping reports whether name has a live typing signal.
func (e *Engine) IsTyping(name string) bool {
	return e.debouncer.Active(name)
}

func (e *Engine) submit(ctx context.Context, ev event) result {
	ev.reply = make(chan result, 1)

	select {
	case e.events <- ev:
	case <-e.stopped:
		return result{err: ErrEngineStopped}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}

	// Once accepted the event always runs to completion and Run always
	// replies, so the result is never dropped. ctx only bounds queueing.
	return <-ev.reply
}

func (e *Engine) handle(ctx context.Context, ev event) result {
	start := time.Now()

	var res result
	switch ev.kind {
	case evConnect:
		res.conn, res.err = e.connect(ev)
	case evJoin:
		res.err = e.join(ev)
	case evSend:
		res.message, res.err = e.send(ctx, ev)
	case evTyping:
		res.err = e.typing(ev)
	case evHistory:
		res.messages, res.err = e.history(ctx, ev)
	case evDisconnect:
		res.err = e.disconnect(ev.connID)
	case evReject:
		res.err = e.reject(ev)
	default:
		res.err = fmt.Errorf("unknown event kind %d", ev.kind)
	}
	e.dropOverflowed()

	name := eventNames[ev.kind]
	outcome := "ok"
	if res.err != nil {
		outcome = Code(res.err)
	}
	metrics.EventsTotal.WithLabelValues(name, outcome).Inc()
	metrics.EventDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	metrics.ConnectionsActive.Set(float64(e.registry.Len()))
	return res
}

func (e *Engine) connect(ev event) (*Connection, error) {
	conn, err := e.registry.Register(ev.connID)
	if err != nil {
		logger.Error("Registry invariant violated for connection %s: %v", ev.connID, err)
		return nil, err
	}
	logger.Debug("Connection %s registered", ev.connID)
	return conn, nil
}

func (e *Engine) join(ev event) error {
	conn, ok := e.registry.Lookup(ev.connID)
	if !ok {
		return ErrUnknownConnection
	}

	wasBound := conn.name != ""
	joined, err := e.registry.Bind(ev.connID, ev.userID, ev.name)
	if err != nil {
		e.deliverError(conn, err)
		return err
	}

	online := e.registry.Snapshot()
	metrics.OnlineUsers.Set(float64(len(online)))
	frame := e.encode(models.PresenceUpdateFrame{
		Type:      models.MessageTypePresenceUpdate,
		Users:     online,
		UserCount: len(online),
	})
	if wasBound {
		e.deliver(conn, frame)
		return nil
	}
	e.broadcast(frame, "")

	if joined {
		logger.Info("%s is online", conn.name)
	}
	logger.Debug("Connection %s joined as %s", conn.id, conn.name)
	return nil
}

func (e *Engine) send(ctx context.Context, ev event) (models.Message, error) {
	conn, ok := e.registry.Lookup(ev.connID)
	if !ok {
		return models.Message{}, ErrUnknownConnection
	}
	if conn.name == "" {
		e.deliverError(conn, ErrNotJoined)
		return models.Message{}, ErrNotJoined
	}

	body := strings.TrimSpace(ev.body)
	if body == "" {
		e.deliverError(conn, ErrEmptyMessage)
		return models.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > e.opts.MaxMessageChars {
		e.deliverError(conn, ErrMessageTooLong)
		return models.Message{}, ErrMessageTooLong
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()

	persisted, err := e.log.Append(storeCtx, models.Message{
		AuthorID:     conn.userID,
		PresenceName: conn.name,
		Body:         body,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		logger.Error("Failed to persist message from %s: %v", conn.name, err)
		e.deliverError(conn, err)
		return models.Message{}, err
	}
	metrics.MessagesPersisted.Inc()

	frame := e.encode(models.MessageFrame{
		Type:    models.MessageTypeSend,
		Message: persisted,
	})
	for _, target := range e.registry.Connections() {
		if target.hydrated {
			e.deliver(target, frame)
		}
	}
	return persisted, nil
}

func (e *Engine) typing(ev event) error {
	conn, ok := e.registry.Lookup(ev.connID)
	if !ok {
		return ErrUnknownConnection
	}
	if conn.name == "" {
		e.deliverError(conn, ErrNotJoined)
		return ErrNotJoined
	}

	e.debouncer.Touch(conn.name)
	metrics.TypingActive.Set(float64(len(e.debouncer.ActiveNames())))

	e.broadcast(e.encode(models.TypingFrame{
		Type:        models.MessageTypeTyping,
		Name:        conn.name,
		ExpiresInMS: e.debouncer.Window().Milliseconds(),
	}), conn.id)
	return nil
}

func (e *Engine) history(ctx context.Context, ev event) ([]models.Message, error) {
	conn, ok := e.registry.Lookup(ev.connID)
	if !ok {
		return nil, ErrUnknownConnection
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()

	messages, err := e.log.ListChronological(storeCtx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		logger.Error("Failed to load history for connection %s: %v", conn.id, err)
		e.deliverError(conn, err)
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}

	e.deliver(conn, e.encode(models.HistoryFrame{
		Type:     models.MessageTypeHistory,
		Messages: messages,
	}))
	// Every later append reaches conn live, so the snapshot and the live
	// stream neither overlap nor leave a gap.
	conn.hydrated = true
	return messages, nil
}

func (e *Engine) disconnect(connID string) error {
	name, left, err := e.registry.Unregister(connID)
	if err != nil {
		return err
	}
	logger.Debug("Connection %s unregistered", connID)
	if !left {
		return nil
	}

	e.debouncer.Clear(name)
	metrics.TypingActive.Set(float64(len(e.debouncer.ActiveNames())))
	online := e.registry.Snapshot()
	metrics.OnlineUsers.Set(float64(len(online)))
	e.broadcast(e.encode(models.PresenceUpdateFrame{
		Type:      models.MessageTypePresenceUpdate,
		Users:     online,
		UserCount: len(online),
	}), "")
	logger.Info("%s went offline", name)
	return nil
}

func (e *Engine) reject(ev event) error {
	conn, ok := e.registry.Lookup(ev.connID)
	if !ok {
		return ErrUnknownConnection
	}
	e.deliverError(conn, ev.err)
	return nil
}

// broadcast enqueues frame to every registered connection except the one
// with id except.
func (e *Engine) broadcast(frame []byte, except string) {
	if frame == nil {
		return
	}
	for _, conn := range e.registry.Connections() {
		if conn.id == except {
			continue
		}
		e.deliver(conn, frame)
	}
}

func (e *Engine) deliver(conn *Connection, frame []byte) {
	if frame == nil {
		return
	}
	if conn.enqueue(frame) {
		metrics.FramesDelivered.Inc()
		return
	}
	e.overflowed = append(e.overflowed, conn.id)
}

func (e *Engine) deliverError(conn *Connection, err error) {
	e.deliver(conn, e.encode(models.ErrorFrame{
		Type:  models.MessageTypeError,
		Code:  Code(err),
		Error: publicText(err),
	}))
}

// dropOverflowed disconnects slow consumers found during the last
// fan-out. Their presence broadcasts may overflow further connections, so
// it runs until no overflow is pending.
func (e *Engine) dropOverflowed() {
	for len(e.overflowed) > 0 {
		connID := e.overflowed[0]
		e.overflowed = e.overflowed[1:]

		err := e.disconnect(connID)
		if errors.Is(err, ErrUnknownConnection) {
			continue
		}
		metrics.QueueOverflows.Inc()
		logger.Warn("Connection %s dropped: %v", connID, ErrQueueOverflow)
	}
	e.overflowed = nil
}

func (e *Engine) encode(frame interface{}) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Error marshaling frame: %v", err)
		return nil
	}
	return data
}

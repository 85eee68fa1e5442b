package actors

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cosmossdk.io/log"
	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
)

var (
	// ErrNotConnected is returned when a channel is used before both the
	// control and the data channel are connected
	ErrNotConnected = errors.New("actor not connected")
	// ErrTimeout is returned by ReceiveControl when no reply arrives in time
	ErrTimeout = errors.New("timed out waiting for control reply")
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("actor already started")
)

// AlreadyInitialized is the error text replied to a StartMessage sent to
// an initialized actor
const AlreadyInitialized = "Actor already initialized"

// ControlAddress returns the control endpoint address of the actor name
func ControlAddress(name string) string {
	return fmt.Sprintf("inproc://%s.control", name)
}

// DataAddress returns the data endpoint address of the actor name
func DataAddress(name string) string {
	return fmt.Sprintf("inproc://%s.data", name)
}

// controlRequest is a decoded control frame handed to the actor loop
type controlRequest struct {
	frame transport.Frame
	msg   message.Message
	err   error
}

// ActorRef runs one actor and is the handle clients drive it through.
//
// The actor goroutine owns the bound endpoints and the Behavior. The client
// side owns the control and data connections opened by ConnectControl and
// ConnectData. Nothing else is shared between the two sides besides the
// alive flag.
type ActorRef struct {
	name     string
	behavior Behavior
	net      *transport.Context
	opts     *options
	logger   log.Logger

	alive   atomic.Bool
	started atomic.Bool
	handled atomic.Int64
	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// guards the endpoints between Start and HardKill
	lifecycle sync.Mutex
	controlIn *transport.Endpoint
	dataIn    *transport.Endpoint

	errMtx  sync.Mutex
	stopErr error

	// owned by the client
	mtx     sync.Mutex
	control *transport.ReqConn
	data    *transport.PushConn
}

// NewActorRef returns an actor running behavior, not yet started
func NewActorRef(name string, behavior Behavior, net *transport.Context, opts ...ActorOpt) *ActorRef {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &ActorRef{
		name:     name,
		behavior: behavior,
		net:      net,
		opts:     o,
		logger:   o.logger.With("actor", name),
		runCtx:   runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Name returns the actor name
func (ref *ActorRef) Name() string {
	return ref.name
}

// Done is closed once the actor has stopped
func (ref *ActorRef) Done() <-chan struct{} {
	return ref.done
}

// IsAlive reports whether the actor is running
func (ref *ActorRef) IsAlive() bool {
	return ref.alive.Load()
}

// Err returns why the actor stopped on its own: a failed initialization or
// a feed that ended on an error. It is nil while the actor runs and after a
// requested stop.
func (ref *ActorRef) Err() error {
	ref.errMtx.Lock()
	defer ref.errMtx.Unlock()
	return ref.stopErr
}

// Start binds the actor endpoints and spawns its goroutine
func (ref *ActorRef) Start(ctx context.Context) error {
	// get the observability span
	_, span := getSpanContext(ctx, "ActorRef.Start", ref.name)
	defer span.End()
	// acquire the lifecycle lock
	ref.lifecycle.Lock()
	defer ref.lifecycle.Unlock()
	if ref.started.Load() {
		return errors.Wrap(ErrAlreadyStarted, ref.name)
	}
	ref.started.Store(true)
	// bind both channels
	controlIn, err := ref.net.Bind(ControlAddress(ref.name), ref.opts.mailboxSize)
	if err != nil {
		return ref.failStart(err)
	}
	dataIn, err := ref.net.Bind(DataAddress(ref.name), ref.opts.mailboxSize)
	if err != nil {
		controlIn.Close()
		return ref.failStart(err)
	}
	ref.controlIn = controlIn
	ref.dataIn = dataIn
	// cancelling ctx stops the actor
	go func() {
		select {
		case <-ctx.Done():
			ref.cancel()
		case <-ref.done:
		}
	}()
	// spawn the actor loop
	ref.alive.Store(true)
	requests := make(chan controlRequest)
	go ref.watchControl(ref.runCtx, requests)
	go ref.run(ref.runCtx, requests)
	ref.logger.Debug("actor started")
	return nil
}

// failStart leaves the ref in the stopped state
func (ref *ActorRef) failStart(err error) error {
	ref.cancel()
	close(ref.done)
	return errors.Wrapf(err, "start actor %s", ref.name)
}

// ConnectControl opens the client control connection
func (ref *ActorRef) ConnectControl() error {
	conn, err := ref.net.DialRequest(ControlAddress(ref.name))
	if err != nil {
		return errors.Wrapf(err, "connect control of %s", ref.name)
	}
	ref.mtx.Lock()
	defer ref.mtx.Unlock()
	ref.control = conn
	return nil
}

// ConnectData opens the client data connection
func (ref *ActorRef) ConnectData() error {
	conn, err := ref.DialData()
	if err != nil {
		return err
	}
	ref.mtx.Lock()
	defer ref.mtx.Unlock()
	ref.data = conn
	return nil
}

// DialData opens a new data connection to the actor. The caller owns it;
// this is how one actor connects to the data channel of another.
func (ref *ActorRef) DialData() (*transport.PushConn, error) {
	conn, err := ref.net.Dial(DataAddress(ref.name))
	if err != nil {
		return nil, errors.Wrapf(err, "connect data of %s", ref.name)
	}
	return conn, nil
}

// SendControl sends a control request. A reply, if any, is read with
// ReceiveControl.
func (ref *ActorRef) SendControl(ctx context.Context, msg message.Message) error {
	// get the observability span
	spanCtx, span := getSpanContext(ctx, "ActorRef.SendControl", ref.name)
	defer span.End()
	control, _, err := ref.connections()
	if err != nil {
		return err
	}
	payload, err := message.Encode(msg)
	if err != nil {
		return err
	}
	return errors.Wrapf(control.Request(spanCtx, payload), "send control to %s", ref.name)
}

// SendData pushes a message on the data channel
func (ref *ActorRef) SendData(ctx context.Context, msg message.Message) error {
	// get the observability span
	spanCtx, span := getSpanContext(ctx, "ActorRef.SendData", ref.name)
	defer span.End()
	_, data, err := ref.connections()
	if err != nil {
		return err
	}
	payload, err := message.Encode(msg)
	if err != nil {
		return err
	}
	return errors.Wrapf(data.Push(spanCtx, payload), "send data to %s", ref.name)
}

// ReceiveControl waits up to timeout for the next control reply
func (ref *ActorRef) ReceiveControl(timeout time.Duration) (message.Message, error) {
	ref.mtx.Lock()
	control := ref.control
	ref.mtx.Unlock()
	if control == nil {
		return nil, errors.Wrap(ErrNotConnected, ref.name)
	}
	payload, err := control.Reply(timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return nil, errors.Wrap(ErrTimeout, ref.name)
		}
		return nil, err
	}
	return message.Decode(payload)
}

// Join waits up to timeout for the actor to stop and reports whether it did
func (ref *ActorRef) Join(timeout time.Duration) bool {
	if !ref.started.Load() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ref.done:
		return true
	case <-timer.C:
		return false
	}
}

// WaitIdle waits up to timeout until every frame delivered on the data
// channel has been handled and reports whether that happened
func (ref *ActorRef) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if ref.idle() {
			return true
		}
		// a stopped actor handles nothing more
		if !ref.IsAlive() || time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (ref *ActorRef) idle() bool {
	ref.lifecycle.Lock()
	dataIn := ref.dataIn
	ref.lifecycle.Unlock()
	if dataIn == nil {
		return true
	}
	return dataIn.Delivered() == ref.handled.Load()
}

// Terminate stops the actor, waits for it and closes the client connections
func (ref *ActorRef) Terminate() {
	if ref.started.Load() {
		ref.cancel()
		if !ref.Join(ref.opts.terminateTimeout) {
			ref.logger.Warn("actor did not stop in time", "timeout", ref.opts.terminateTimeout)
		}
	}
	// acquire a lock
	ref.mtx.Lock()
	defer ref.mtx.Unlock()
	// close the client side
	if ref.control != nil {
		_ = ref.control.Close()
		ref.control = nil
	}
	if ref.data != nil {
		_ = ref.data.Close()
		ref.data = nil
	}
}

// SoftKill marks the actor dead and lets it stop after the message at hand
func (ref *ActorRef) SoftKill() {
	ref.alive.Store(false)
	if ref.started.Load() {
		ref.cancel()
	}
}

// HardKill marks the actor dead and closes its endpoints at once. Frames
// still queued are lost.
func (ref *ActorRef) HardKill() {
	ref.alive.Store(false)
	// acquire the lifecycle lock, Start may be binding
	ref.lifecycle.Lock()
	defer ref.lifecycle.Unlock()
	if !ref.started.Load() {
		return
	}
	ref.cancel()
	if ref.controlIn != nil {
		ref.controlIn.Close()
	}
	if ref.dataIn != nil {
		ref.dataIn.Close()
	}
}

func (ref *ActorRef) connections() (*transport.ReqConn, *transport.PushConn, error) {
	ref.mtx.Lock()
	defer ref.mtx.Unlock()
	if ref.control == nil || ref.data == nil {
		return nil, nil, errors.Wrap(ErrNotConnected, ref.name)
	}
	return ref.control, ref.data, nil
}

// watchControl reads the control channel beside the actor loop. A poison
// pill cancels the loop context at once, which also unblocks a forward
// waiting on a full downstream mailbox. Other requests go to the loop in
// arrival order.
func (ref *ActorRef) watchControl(ctx context.Context, requests chan<- controlRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-ref.controlIn.Frames():
			msg, err := message.Decode(frame.Payload)
			if _, ok := msg.(*message.PoisonPillMessage); ok && err == nil {
				ref.logger.Info("poison pill received, stopping")
				ref.alive.Store(false)
				ref.cancel()
				return
			}
			select {
			case requests <- controlRequest{frame: frame, msg: msg, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// run the actor loop until poison pill, failed init, closed feed or cancel
func (ref *ActorRef) run(ctx context.Context, requests <-chan controlRequest) {
	defer ref.shutdown()
	var (
		initialized bool
		feeder      Feeder
		feed        <-chan message.Message
	)
	for {
		// a poison pill may have arrived while handling the last message
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			if req.err != nil {
				ref.logger.Error("undecodable control message", "err", req.err)
				ref.reply(ctx, req.frame, message.NewError(ref.name, req.err.Error()))
				continue
			}
			switch req.msg.(type) {
			case *message.StartMessage:
				// reject a second initialization
				if initialized {
					ref.reply(ctx, req.frame, message.NewError(ref.name, AlreadyInitialized))
					continue
				}
				// run the specialization init, a failure ends the actor
				if err := ref.init(ctx); err != nil {
					ref.logger.Error("initialization failed", "err", err)
					ref.setErr(err)
					ref.reply(ctx, req.frame, message.NewError(ref.name, err.Error()))
					return
				}
				initialized = true
				// start the feed of a producing behavior
				if f, ok := ref.behavior.(Feeder); ok {
					feeder = f
					feed = f.Feed(ctx)
				}
				ref.reply(ctx, req.frame, &message.OKMessage{Sender: ref.name})
			default:
				ref.reply(ctx, req.frame, message.NewError(ref.name, fmt.Sprintf("unsupported control message %s", req.msg.Kind())))
			}
		case frame := <-ref.dataIn.Frames():
			ref.handleData(ctx, frame, initialized)
		case msg, ok := <-feed:
			if !ok {
				// the feed ends on its own only when its source is done
				if err := feeder.Err(); err != nil && ctx.Err() == nil {
					ref.setErr(err)
				}
				ref.logger.Info("feed closed, stopping")
				return
			}
			ref.receive(ctx, msg)
		}
	}
}

func (ref *ActorRef) handleData(ctx context.Context, frame transport.Frame, initialized bool) {
	// count the frame whatever becomes of it
	defer ref.handled.Add(1)
	msg, err := message.Decode(frame.Payload)
	if err != nil {
		ref.logger.Error("undecodable data message", "err", err)
		return
	}
	if !initialized {
		ref.logger.Debug("data message before initialization dropped", "kind", msg.Kind())
		return
	}
	ref.receive(ctx, msg)
}

func (ref *ActorRef) init(ctx context.Context) error {
	// get the observability span
	spanCtx, span := getSpanContext(ctx, "ActorRef.Init", ref.name)
	defer span.End()
	return ref.behavior.Init(spanCtx)
}

func (ref *ActorRef) receive(ctx context.Context, msg message.Message) {
	if err := ref.behavior.Receive(ctx, msg); err != nil {
		ref.logger.Error("error handling message", "kind", msg.Kind(), "err", err)
	}
}

func (ref *ActorRef) reply(ctx context.Context, frame transport.Frame, msg message.Message) {
	payload, err := message.Encode(msg)
	if err != nil {
		ref.logger.Error("cannot encode reply", "err", err)
		return
	}
	if err := frame.Reply(ctx, payload); err != nil {
		ref.logger.Warn("reply not delivered", "err", err)
	}
}

func (ref *ActorRef) setErr(err error) {
	ref.errMtx.Lock()
	defer ref.errMtx.Unlock()
	ref.stopErr = err
}

// shutdown releases everything the actor goroutine owns
func (ref *ActorRef) shutdown() {
	ref.alive.Store(false)
	ref.cancel()
	// stop accepting frames
	ref.controlIn.Close()
	ref.dataIn.Close()
	// let the behavior release what it holds
	if err := ref.behavior.Close(); err != nil {
		ref.logger.Error("error closing actor", "err", err)
	}
	close(ref.done)
	ref.logger.Debug("actor stopped", "delivered", ref.dataIn.Delivered(), "handled", ref.handled.Load())
}

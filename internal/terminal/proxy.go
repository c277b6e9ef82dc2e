package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultQuit is Ctrl-Q.
const DefaultQuit = 0x11

// Session is a message stream to the remote console. *websocket.Conn
// satisfies it.
type Session interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// State is where a proxy is in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Proxy copies keystrokes to a console session and console output back to
// the terminal.
type Proxy struct {
	In  io.Reader
	Out io.Writer
	// Term is put in raw mode for the life of the session. Nil leaves the
	// terminal alone.
	Term RawTerminal
	// Quit ends the session without being forwarded. Zero selects
	// DefaultQuit.
	Quit byte
	Log  logrus.FieldLogger

	state atomic.Int32
}

// State returns the current state.
func (p *Proxy) State() State {
	return State(p.state.Load())
}

func (p *Proxy) setState(s State) {
	p.state.Store(int32(s))
}

func (p *Proxy) quit() byte {
	if p.Quit == 0 {
		return DefaultQuit
	}
	return p.Quit
}

func (p *Proxy) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

type message struct {
	kind int
	data []byte
}

// Run proxies until the quit byte is typed, the remote closes, input ends,
// ctx is cancelled or an I/O error occurs. Quit and remote close return
// nil. The terminal is restored and the session closed on every path; a
// restore failure is joined after the error that ended the session.
func (p *Proxy) Run(ctx context.Context, sess Session) (err error) {
	p.setState(StateConnecting)

	g := &guard{}
	if p.Term != nil {
		restore, rawErr := p.Term.MakeRaw()
		if rawErr != nil {
			sess.Close()
			p.setState(StateClosed)
			return fmt.Errorf("enter raw mode: %w", rawErr)
		}
		g.restore = restore
	}
	defer func() {
		sess.Close()
		if restoreErr := g.release(); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("restore terminal: %w", restoreErr))
		}
		p.setState(StateClosed)
	}()

	done := make(chan struct{})
	defer close(done)

	keys := make(chan byte)
	keyErr := make(chan error, 1)
	msgs := make(chan message)
	msgErr := make(chan error, 1)

	// A blocked terminal read cannot be interrupted; this goroutine exits
	// on its next byte once the session is over.
	go func() {
		var buf [1]byte
		for {
			n, err := p.In.Read(buf[:])
			if n == 1 {
				select {
				case keys <- buf[0]:
				case <-done:
					return
				}
			}
			if err != nil {
				keyErr <- err
				return
			}
		}
	}()

	go func() {
		for {
			kind, data, err := sess.ReadMessage()
			if err != nil {
				msgErr <- err
				return
			}
			select {
			case msgs <- message{kind: kind, data: data}:
			case <-done:
				return
			}
		}
	}()

	p.setState(StateActive)
	log := p.log()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case b := <-keys:
			if b == p.quit() {
				log.Debug("quit requested")
				return nil
			}
			if err := sess.WriteMessage(websocket.BinaryMessage, []byte{b}); err != nil {
				return fmt.Errorf("send input: %w", err)
			}

		case err := <-keyErr:
			if errors.Is(err, io.EOF) {
				log.Debug("input closed")
				return nil
			}
			return fmt.Errorf("read input: %w", err)

		case m := <-msgs:
			switch m.kind {
			case websocket.BinaryMessage:
				if _, err := p.Out.Write(m.data); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
				if f, ok := p.Out.(interface{ Flush() error }); ok {
					if err := f.Flush(); err != nil {
						return fmt.Errorf("flush output: %w", err)
					}
				}
			case websocket.CloseMessage:
				log.Debug("remote closed")
				return nil
			default:
				log.WithField("type", m.kind).Debug("ignoring console message")
			}

		case err := <-msgErr:
			// A backend that dies mid-session shows up as an abnormal close
			// (1006) or a truncated read; both end the stream like a close
			// frame does.
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.WithError(err).Debug("remote closed")
				return nil
			}
			return fmt.Errorf("receive output: %w", err)
		}
	}
}

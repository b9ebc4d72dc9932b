package control

import (
	"errors"
	"sync"
)

// Publisher is the sending half of a control channel.
type Publisher interface {
	Send(msg string) error
}

// Subscriber is the receiving half of a control channel.
type Subscriber interface {
	Recv() (string, error)
}

// ErrClosed is returned by Pipe operations after Close.
var ErrClosed = errors.New("control channel closed")

// ErrFull is returned by Send when the buffer has no room. Send never
// blocks; a slow consumer must not be able to wedge publishers or Close.
var ErrFull = errors.New("control channel full")

// Pipe is an in-process simplex control channel backed by a buffered
// channel. It satisfies both Publisher and Subscriber; external transports
// (sockets, OS pipes) implement the same interfaces.
type Pipe struct {
	mu     sync.Mutex
	ch     chan string
	closed bool
}

func NewPipe(buf int) *Pipe {
	if buf < 1 {
		buf = 16
	}
	return &Pipe{ch: make(chan string, buf)}
}

func (p *Pipe) Send(msg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Recv blocks until a message arrives. After Close it drains buffered
// messages, then reports ErrClosed.
func (p *Pipe) Recv() (string, error) {
	msg, ok := <-p.ch
	if !ok {
		return "", ErrClosed
	}
	return msg, nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.ch)
	return nil
}

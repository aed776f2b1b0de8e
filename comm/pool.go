package comm

import (
	"io"
	"sync"
	"time"
)

// CreationFunc opens a new connection to a device.  Use a closure to
// capture the address and dial options.
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool lends connections to a single device, opening them on demand up
// to a fixed ceiling.  Returned connections are reused most recent
// first and closed once they have sat idle for the timeout, since the
// controllers in this system drop sockets that go quiet.  It is safe
// for concurrent use.  Pools must be created with NewPool.
type Pool struct {
	maker   CreationFunc
	timeout time.Duration

	// tokens holds one value per lendable connection; Get blocks on
	// it when every connection is out
	tokens chan struct{}

	mu   sync.Mutex
	lent int
	idle []idleConn
}

type idleConn struct {
	rwc   io.ReadWriteCloser
	since time.Time
}

// NewPool returns a pool of up to maxSize connections which closes
// connections idle for longer than timeout.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maker:   maker,
		timeout: timeout,
		tokens:  make(chan struct{}, maxSize),
	}
	for i := 0; i < maxSize; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Get borrows a connection, blocking until one is available if all are
// out.  The caller has exclusive use of it and must hand it back with
// Put, or with Destroy if it has gone bad (e.g. every call errors).
// A connection that came with a non-nil error must not be handed back.
func (p *Pool) Get() (io.ReadWriter, error) {
	<-p.tokens
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		rwc := p.idle[n-1].rwc
		p.idle = p.idle[:n-1]
		p.lent++
		p.mu.Unlock()
		return rwc, nil
	}
	p.mu.Unlock()

	rwc, err := p.maker()
	if err != nil {
		// nothing was lent; free the slot for the next caller
		p.tokens <- struct{}{}
		return nil, err
	}
	p.mu.Lock()
	p.lent++
	p.mu.Unlock()
	return rwc, nil
}

// Put hands a connection back for reuse.  It will be closed if nothing
// borrows it again within the pool's timeout.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	p.lent--
	p.idle = append(p.idle, idleConn{rwc: rwc, since: time.Now()})
	p.mu.Unlock()
	p.tokens <- struct{}{}
	time.AfterFunc(p.timeout, p.reap)
}

// Destroy closes a borrowed connection and frees its slot, instead of
// returning it for reuse.
func (p *Pool) Destroy(rw io.ReadWriter) {
	if c, ok := rw.(io.Closer); ok {
		c.Close()
	}
	p.mu.Lock()
	p.lent--
	p.mu.Unlock()
	p.tokens <- struct{}{}
}

// Active returns the number of connections currently lent out.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lent
}

// Size returns the number of connections owned by the pool, idle or
// lent out.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lent + len(p.idle)
}

// reap closes idle connections whose timeout has expired.
func (p *Pool) reap() {
	cutoff := time.Now().Add(-p.timeout)
	p.mu.Lock()
	kept := p.idle[:0]
	var expired []io.ReadWriteCloser
	for _, ic := range p.idle {
		if ic.since.After(cutoff) {
			kept = append(kept, ic)
		} else {
			expired = append(expired, ic.rwc)
		}
	}
	p.idle = kept
	p.mu.Unlock()
	for _, rwc := range expired {
		rwc.Close()
	}
}

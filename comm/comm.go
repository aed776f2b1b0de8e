// Package comm holds the low level transports shared by the device
// adapters: a terminator-framed connection over TCP or a serial port
// with a retrying open, and a connection pool (pool.go) for devices
// that drop idle sockets.
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNoSerialConf is returned when a serial device is opened
	// without a populated SerialConfig
	ErrNoSerialConf = errors.New("comm: SerialConfig is nil and IsSerial=true")

	// ErrNotConnected is returned by Send and Recv before Open
	ErrNotConnected = errors.New("comm: not connected to remote")
)

// DefaultTerminator frames commands and replies for the instruments in
// this system.
const DefaultTerminator = byte('\r')

// Communicator is the transport surface the device adapters program
// against.
type Communicator interface {
	Open() error
	Send([]byte) error
	Recv() ([]byte, error)
	SendRecv([]byte) ([]byte, error)
	io.Closer
}

// RemoteDevice is a terminator-framed connection to one instrument.
// If IsSerial is true, SerialConfig must be populated before the first
// Open.  Create instances with NewRemoteDevice.
type RemoteDevice struct {
	// Addr is the host:port of a networked device, or the port path
	// of a serial one
	Addr string

	// IsSerial selects a serial port instead of TCP
	IsSerial bool

	// Conn is the active connection, nil before Open and after Close
	Conn io.ReadWriteCloser

	// SerialConfig carries the port parameters for serial devices;
	// ignored for TCP
	SerialConfig *serial.Config

	// Terminator frames outgoing commands and delimits replies
	Terminator byte
}

// NewRemoteDevice returns a device with the default terminator.
func NewRemoteDevice(addr string, isSerial bool) RemoteDevice {
	return RemoteDevice{Addr: addr, IsSerial: isSerial, Terminator: DefaultTerminator}
}

// Open dials the device and sets Conn.  A refused connection is
// retried with exponential backoff; the controllers here take a moment
// to free the listening socket after a client disconnects.  Any other
// failure is returned immediately.
func (rd *RemoteDevice) Open() error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.RandomizationFactor = 0
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = 3 * time.Second
	return backoff.Retry(func() error {
		err := rd.dial()
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "refused") {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (rd *RemoteDevice) dial() error {
	var (
		conn io.ReadWriteCloser
		err  error
	)
	if rd.IsSerial {
		if rd.SerialConfig == nil {
			return ErrNoSerialConf
		}
		conn, err = serial.OpenPort(rd.SerialConfig)
	} else {
		conn, err = TCPSetup(rd.Addr, 3*time.Second)
	}
	if err == nil {
		rd.Conn = conn
	}
	return err
}

// Close closes the connection and nils Conn.
func (rd *RemoteDevice) Close() error {
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	if err == nil {
		rd.Conn = nil
	}
	return err
}

// Send writes b to the remote with the terminator appended.
func (rd *RemoteDevice) Send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	_, err := rd.Conn.Write(append(b, rd.Terminator))
	return err
}

// Recv reads one reply and strips the terminator.
func (rd *RemoteDevice) Recv() ([]byte, error) {
	if rd.Conn == nil {
		return nil, ErrNotConnected
	}
	buf, err := bufio.NewReader(rd.Conn).ReadBytes(rd.Terminator)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf, []byte{rd.Terminator}), nil
}

// SendRecv sends one command and returns its reply.
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	if err := rd.Send(b); err != nil {
		return nil, err
	}
	return rd.Recv()
}

// TCPSetup opens a TCP connection with the timeout applied to connect,
// read, and write.
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

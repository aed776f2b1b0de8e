package comm_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/openflim/scanhub/comm"
)

// echoServer accepts connections on a random local port and echoes
// everything back, returning the address it listens on.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(conn, conn)
		}
	}()
	return ln.Addr().String()
}

func dialPool(t *testing.T, size int, timeout time.Duration) *comm.Pool {
	addr := echoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	return comm.NewPool(size, timeout, maker)
}

func TestPoolLendsToCapacity(t *testing.T) {
	pool := dialPool(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatalf("get %d: %v", i+1, err)
		}
	}
	if got := pool.Active(); got != 3 {
		t.Errorf("active = %d, want 3", got)
	}
}

func TestPoolReusesReturnedConns(t *testing.T) {
	pool := dialPool(t, 2, time.Second)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(conn)
	again, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	if again != conn {
		t.Error("pool opened a fresh connection instead of reusing the idle one")
	}
}

func TestPoolBlocksWhenExhausted(t *testing.T) {
	pool := dialPool(t, 2, time.Second)
	for i := 0; i < 2; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal(err)
		}
	}
	extra := make(chan io.ReadWriter, 1)
	go func() {
		rw, _ := pool.Get()
		extra <- rw
	}()
	select {
	case <-extra:
		t.Fatal("pool exceeded its size limit")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPoolDestroyFreesASlot(t *testing.T) {
	pool := dialPool(t, 1, time.Second)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	pool.Destroy(conn)
	done := make(chan struct{})
	go func() {
		if _, err := pool.Get(); err != nil {
			t.Error(err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not reopen after Destroy")
	}
}

func TestRemoteDeviceSendRecv(t *testing.T) {
	addr := echoServer(t)
	rd := comm.NewRemoteDevice(addr, false)
	if err := rd.Open(); err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	resp, err := rd.SendRecv([]byte("WAV?"))
	if err != nil {
		t.Fatal(err)
	}
	// the echo returns the terminator, which Recv strips
	if string(resp) != "WAV?" {
		t.Errorf("got %q, want %q", resp, "WAV?")
	}
}

func TestRemoteDeviceSerialNeedsConfig(t *testing.T) {
	rd := comm.NewRemoteDevice("/dev/null", true)
	if err := rd.Open(); err == nil {
		t.Error("expected an error opening a serial device with no config")
	}
}

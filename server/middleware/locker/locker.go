// Package locker provides an HTTP middleware that bounces requests
// with 423 (Locked), so one operator can hold a device while clients
// on other consoles keep polling it.
package locker

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/openflim/scanhub/generichttp"
)

// Locker is a non-blocking lock with a list of route substrings that
// stay reachable while it is held.
type Locker struct {
	locked atomic.Bool

	// DoNotProtect lists path substrings the lock does not apply to
	DoNotProtect []string
}

// New returns a Locker whose own control route is never locked out.
func New() *Locker {
	return &Locker{DoNotProtect: []string{"lock"}}
}

// Lock engages the lock.
func (l *Locker) Lock() {
	l.locked.Store(true)
}

// Unlock releases the lock.
func (l *Locker) Unlock() {
	l.locked.Store(false)
}

// Locked reports whether the lock is engaged.
func (l *Locker) Locked() bool {
	return l.locked.Load()
}

func (l *Locker) protects(path string) bool {
	for _, s := range l.DoNotProtect {
		if strings.Contains(path, s) {
			return false
		}
	}
	return true
}

// Check is a middleware that returns http.StatusLocked on protected
// paths while the lock is engaged.
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() && l.protects(r.URL.Path) {
			w.WriteHeader(http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Inject adds GET and POST /lock routes manipulating l to an HTTPer's
// route table.
func Inject(other generichttp.HTTPer, l *Locker) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = generichttp.GetBool(func() (bool, error) {
		return l.Locked(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = generichttp.SetBool(func(b bool) error {
		if b {
			l.Lock()
		} else {
			l.Unlock()
		}
		return nil
	})
}

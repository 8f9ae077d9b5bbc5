package serialmux

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/roadquality/internal/httputil"
)

// ErrBridgeDisabled is returned by commands sent while no sensor bridge is
// attached.
var ErrBridgeDisabled = errors.New("sensor bridge disabled")

// DisabledSerialMux stands in for the sensor bridge when the analyzer runs
// without one, e.g. to browse a recorded database. It never produces lines.
// Subscriber channels are closed on Unsubscribe and Close so collectors
// waiting on them finish.
type DisabledSerialMux struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return id, ch
	}
	d.subs[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop(id)
}

// drop closes and forgets one subscriber. Callers hold d.mu.
func (d *DisabledSerialMux) drop(id string) {
	if ch, ok := d.subs[id]; ok {
		close(ch)
		delete(d.subs, id)
	}
}

// SendCommand always fails; there is no bridge to receive the command.
func (d *DisabledSerialMux) SendCommand(string) error { return ErrBridgeDisabled }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for id := range d.subs {
		d.drop(id)
	}
	return nil
}

func (d *DisabledSerialMux) Initialize() error { return nil }

// AttachAdminRoutes serves /debug/bridge-status, reporting that no bridge is
// attached and how many collectors are still subscribed.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	tsweb.Debugger(mux).HandleFunc("bridge-status", "sensor bridge status", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		n := len(d.subs)
		d.mu.Unlock()
		httputil.WriteJSONOK(w, map[string]any{
			"bridge":      "disabled",
			"subscribers": n,
		})
	})
}

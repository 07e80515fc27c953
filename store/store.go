// Package store holds the client-visible state built from protocol events
// and notifies subscribers with immutable snapshots after every change.
package store

import (
	"sync"

	"github.com/d1nch8g/voiceorder/router"
	"github.com/d1nch8g/voiceorder/transport"
)

// CartLine is one distinct item in the cart.
type CartLine struct {
	Item string
	Qty  int
}

// ThankYou is shown after an order is submitted until dismissed.
type ThankYou struct {
	OrderID string
	Total   float64
}

// Snapshot is a copy of the store state. Subscribers may keep it.
type Snapshot struct {
	Menu      []router.MenuItem
	Cart      []CartLine
	Total     *float64
	Submitted bool
	ThankYou  *ThankYou

	Channels  map[string]transport.Status
	Recording bool
	Notice    string
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Menu = cloneMenu(s.Menu)
	out.Cart = append([]CartLine(nil), s.Cart...)
	if s.Total != nil {
		t := *s.Total
		out.Total = &t
	}
	if s.ThankYou != nil {
		ty := *s.ThankYou
		out.ThankYou = &ty
	}
	out.Channels = make(map[string]transport.Status, len(s.Channels))
	for k, v := range s.Channels {
		out.Channels[k] = v
	}
	return out
}

func cloneMenu(items []router.MenuItem) []router.MenuItem {
	if items == nil {
		return nil
	}
	out := make([]router.MenuItem, len(items))
	for i, it := range items {
		out[i] = it
		if it.Available != nil {
			v := *it.Available
			out[i].Available = &v
		}
	}
	return out
}

// Store serializes mutations and fans snapshots out to subscribers in
// registration order. Subscribers run outside the lock.
type Store struct {
	mu     sync.Mutex
	state  Snapshot
	subs   map[int]func(Snapshot)
	order  []int
	nextID int

	// notifyMu keeps notifications in mutation order across goroutines.
	notifyMu sync.Mutex
}

func New() *Store {
	return &Store{
		state: Snapshot{Channels: make(map[string]transport.Status)},
		subs:  make(map[int]func(Snapshot)),
	}
}

var _ router.Sink = (*Store)(nil)

// Apply folds one protocol event into the state.
func (s *Store) Apply(ev router.Event) {
	s.update(func(st *Snapshot) bool {
		switch e := ev.(type) {
		case router.MenuSnapshot:
			st.Menu = cloneMenu(e.Items)
			if st.Menu == nil {
				st.Menu = []router.MenuItem{}
			}
		case router.CartLineAdded:
			if e.Item == "" || e.Qty < 1 {
				return false
			}
			st.Cart = addLine(st.Cart, e.Item, e.Qty)
			st.Submitted = false
		case router.OrderSubmitted:
			total := e.Total
			st.Total = &total
			st.Submitted = true
			st.ThankYou = &ThankYou{OrderID: e.OrderID, Total: e.Total}
		default:
			return false
		}
		return true
	})
}

func addLine(cart []CartLine, item string, qty int) []CartLine {
	for i := range cart {
		if cart[i].Item == item {
			cart[i].Qty += qty
			return cart
		}
	}
	return append(cart, CartLine{Item: item, Qty: qty})
}

// SetMenu replaces the menu from a source other than the event stream.
func (s *Store) SetMenu(items []router.MenuItem) {
	s.Apply(router.MenuSnapshot{Items: items})
}

// SetChannelStatus records the connection status of a transport channel.
// Its signature matches transport.Config.OnStatus.
func (s *Store) SetChannelStatus(name string, status transport.Status) {
	s.update(func(st *Snapshot) bool {
		if prev, ok := st.Channels[name]; ok && prev == status {
			return false
		}
		st.Channels[name] = status
		return true
	})
}

// SetRecording records whether the microphone is live.
func (s *Store) SetRecording(on bool) {
	s.update(func(st *Snapshot) bool {
		if st.Recording == on {
			return false
		}
		st.Recording = on
		return true
	})
}

// SetNotice replaces the one-line message shown under the status bar.
func (s *Store) SetNotice(msg string) {
	s.update(func(st *Snapshot) bool {
		if st.Notice == msg {
			return false
		}
		st.Notice = msg
		return true
	})
}

// DismissThankYou hides the thank-you card. The cart and total remain.
func (s *Store) DismissThankYou() {
	s.update(func(st *Snapshot) bool {
		if st.ThankYou == nil {
			return false
		}
		st.ThankYou = nil
		return true
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn for every subsequent change and returns a function
// that removes it. fn must not mutate the store.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// update applies mutate under the lock and notifies subscribers when it
// reports a change.
func (s *Store) update(mutate func(*Snapshot) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !mutate(&s.state) {
		s.mu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.subs[id])
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}

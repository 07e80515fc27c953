package router

import (
	"errors"
	"testing"

	"github.com/d1nch8g/voiceorder/sound"
	"github.com/d1nch8g/voiceorder/transport"
)

type fakePlayer struct {
	frames [][]byte
}

func (p *fakePlayer) Enqueue(pcm []byte) (sound.Buffer, bool) {
	p.frames = append(p.frames, pcm)
	return sound.Buffer{}, len(pcm) >= 2
}

type fakeSink struct {
	events []Event
}

func (s *fakeSink) Apply(ev Event) { s.events = append(s.events, ev) }

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Event
		wantErr error
	}{
		{
			name: "added",
			in:   `{"status":"added","item":"Latte","qty":2}`,
			want: CartLineAdded{Item: "Latte", Qty: 2},
		},
		{
			name: "added without qty",
			in:   `{"status":"added","item":"Latte"}`,
			want: CartLineAdded{Item: "Latte", Qty: 1},
		},
		{
			name: "submitted string id",
			in:   `{"status":"submitted","order_id":"A1","total":12.5}`,
			want: OrderSubmitted{OrderID: "A1", Total: 12.5},
		},
		{
			name: "submitted numeric id and decimal string total",
			in:   `{"status":"submitted","order_id":17,"total":"8.40"}`,
			want: OrderSubmitted{OrderID: "17", Total: 8.4},
		},
		{
			name: "whole float qty",
			in:   `{"status":"added","item":"Latte","qty":2.0}`,
			want: CartLineAdded{Item: "Latte", Qty: 2},
		},
		{
			name: "string qty",
			in:   `{"status":"added","item":"Scone","qty":"3"}`,
			want: CartLineAdded{Item: "Scone", Qty: 3},
		},
		{
			name:    "fractional qty",
			in:      `{"status":"added","item":"Latte","qty":1.5}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "negative float qty",
			in:      `{"status":"added","item":"Latte","qty":-2.0}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "negative qty",
			in:      `{"status":"added","item":"Latte","qty":-1}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "added without item",
			in:      `{"status":"added","qty":1}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "truncated object",
			in:      `{"status":"add`,
			wantErr: ErrMalformed,
		},
		{
			name:    "not json",
			in:      `hello`,
			wantErr: ErrMalformed,
		},
		{
			name:    "wrong type",
			in:      `{"menu":"latte"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "error shape",
			in:      `{"error":"Item not found"}`,
			wantErr: ErrUnrecognized,
		},
		{
			name:    "unknown status",
			in:      `{"status":"pending"}`,
			wantErr: ErrUnrecognized,
		},
		{
			name:    "null menu",
			in:      `{"menu":null}`,
			wantErr: ErrUnrecognized,
		},
		{
			name:    "json null",
			in:      `null`,
			wantErr: ErrUnrecognized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if got != nil {
					t.Errorf("event = %#v, want nil", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("event = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParse_Menu(t *testing.T) {
	in := `{"menu":[
		{"id":1,"name":"Latte","price":"4.50","is_gluten_free":true,"is_available":true},
		{"id":"b2","name":"Scone","price":3,"is_available":false},
		{"id":3,"name":"Tea","price":2.25}
	]}`
	ev, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	snap, ok := ev.(MenuSnapshot)
	if !ok {
		t.Fatalf("event = %T, want MenuSnapshot", ev)
	}
	if len(snap.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(snap.Items))
	}

	latte, scone, tea := snap.Items[0], snap.Items[1], snap.Items[2]
	if latte.ID != "1" || latte.Price != 4.5 || !latte.GlutenFree || !latte.IsAvailable() {
		t.Errorf("latte = %+v", latte)
	}
	if scone.ID != "b2" || scone.Price != 3 || scone.IsAvailable() {
		t.Errorf("scone = %+v", scone)
	}
	if !tea.IsAvailable() {
		t.Error("item without is_available should be available")
	}
}

func TestParse_EmptyMenuIsSnapshot(t *testing.T) {
	ev, err := Parse([]byte(`{"menu":[]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if snap, ok := ev.(MenuSnapshot); !ok || len(snap.Items) != 0 {
		t.Errorf("event = %#v, want empty MenuSnapshot", ev)
	}
}

func TestRouter_BinaryGoesToPlayerUnchanged(t *testing.T) {
	player, sink := &fakePlayer{}, &fakeSink{}
	r := New(player, sink, nil)

	frame := []byte{1, 2, 3, 4, 5}
	r.Handle(transport.Message{Kind: transport.Binary, Data: frame})

	if len(player.frames) != 1 || string(player.frames[0]) != string(frame) {
		t.Errorf("player got %v, want %v", player.frames, frame)
	}
	if len(sink.events) != 0 {
		t.Errorf("sink got %d events, want 0", len(sink.events))
	}
}

func TestRouter_TextEventsInOrder(t *testing.T) {
	player, sink := &fakePlayer{}, &fakeSink{}
	r := New(player, sink, nil)

	for _, s := range []string{
		`{"menu":[{"id":1,"name":"Latte","price":4}]}`,
		`{"status":"added","item":"Latte","qty":1}`,
		`{"status":"submitted","order_id":"A1","total":4}`,
	} {
		r.Handle(transport.Message{Kind: transport.Text, Data: []byte(s)})
	}

	want := []Kind{KindMenuSnapshot, KindCartLineAdded, KindOrderSubmitted}
	if len(sink.events) != len(want) {
		t.Fatalf("got %d events, want %d", len(sink.events), len(want))
	}
	for i, k := range want {
		if sink.events[i].Kind() != k {
			t.Errorf("event %d = %v, want %v", i, sink.events[i].Kind(), k)
		}
	}
	if len(player.frames) != 0 {
		t.Errorf("player got %d frames, want 0", len(player.frames))
	}
}

func TestRouter_MalformedTextDropped(t *testing.T) {
	player, sink := &fakePlayer{}, &fakeSink{}
	r := New(player, sink, nil)

	for _, s := range []string{`{"status":"added","item":`, `{"error":"boom"}`, ``, `[]`} {
		r.Handle(transport.Message{Kind: transport.Text, Data: []byte(s)})
	}
	if len(sink.events) != 0 {
		t.Errorf("sink got %d events, want 0", len(sink.events))
	}
}

func TestKindString(t *testing.T) {
	if got := KindCartLineAdded.String(); got != "cart_line_added" {
		t.Errorf("String() = %q", got)
	}
	if got := Kind(0).String(); got != "unknown" {
		t.Errorf("String() = %q", got)
	}
}

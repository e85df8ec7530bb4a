package transport

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ringkv/internal/addr"
	"ringkv/internal/telemetry"
)

func TestNetwork_SendReceive(t *testing.T) {
	net := NewNetwork(Faults{}, 1, nil)
	a, b := addr.New(1, 0), addr.New(2, 0)
	net.Register(a)
	net.Register(b)

	for _, msg := range []string{"one", "two", "three"} {
		if err := net.Send(a, b, []byte(msg)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	got := net.Receive(b)
	if len(got) != 3 {
		t.Fatalf("Expected 3 packets, got %d", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if string(got[i].Data) != want {
			t.Errorf("Packet %d: expected %q, got %q", i, want, got[i].Data)
		}
		if got[i].From != a || got[i].To != b {
			t.Errorf("Packet %d: expected %s -> %s, got %s -> %s", i, a, b, got[i].From, got[i].To)
		}
	}

	if len(net.Receive(b)) != 0 {
		t.Error("Expected inbox to be empty after Receive")
	}
	if len(net.Receive(a)) != 0 {
		t.Error("Expected nothing for the sender")
	}
}

func TestNetwork_CopiesOnSend(t *testing.T) {
	net := NewNetwork(Faults{}, 1, nil)
	a, b := addr.New(1, 0), addr.New(2, 0)
	net.Register(b)

	buf := []byte("abc")
	if err := net.Send(a, b, buf); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	buf[0] = 'X'

	got := net.Receive(b)
	if string(got[0].Data) != "abc" {
		t.Errorf("Expected sender mutation to be invisible, got %q", got[0].Data)
	}
}

func TestNetwork_Unreachable(t *testing.T) {
	net := NewNetwork(Faults{}, 1, nil)
	b := addr.New(2, 0)

	before := testutil.ToFloat64(telemetry.MessagesDropped.WithLabelValues("unreachable"))
	err := net.Send(addr.New(1, 0), b, []byte("x"))
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable, got %v", err)
	}
	if got := testutil.ToFloat64(telemetry.MessagesDropped.WithLabelValues("unreachable")) - before; got != 1 {
		t.Errorf("Expected one unreachable drop, got %v", got)
	}

	net.Register(b)
	net.Unregister(b)
	if err := net.Send(addr.New(1, 0), b, []byte("x")); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable after Unregister, got %v", err)
	}
}

func TestNetwork_Faults(t *testing.T) {
	a, b := addr.New(1, 0), addr.New(2, 0)

	tests := []struct {
		name   string
		faults Faults
		sends  int
		want   int
	}{
		{"drop all", Faults{DropRate: 1}, 10, 0},
		{"duplicate all", Faults{DuplicateRate: 1}, 10, 20},
		{"reliable", Faults{}, 10, 10},
		{"reorder keeps count", Faults{Reorder: true}, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := NewNetwork(tt.faults, 42, nil)
			net.Register(b)
			for i := 0; i < tt.sends; i++ {
				if err := net.Send(a, b, []byte{byte(i)}); err != nil {
					t.Fatalf("Send failed: %v", err)
				}
			}
			if got := len(net.Receive(b)); got != tt.want {
				t.Errorf("Expected %d packets, got %d", tt.want, got)
			}
		})
	}
}

func TestNetwork_PartialDropIsSeeded(t *testing.T) {
	a, b := addr.New(1, 0), addr.New(2, 0)

	run := func() int {
		net := NewNetwork(Faults{DropRate: 0.5}, 7, nil)
		net.Register(b)
		for i := 0; i < 200; i++ {
			_ = net.Send(a, b, []byte{1})
		}
		return len(net.Receive(b))
	}

	first, second := run(), run()
	if first != second {
		t.Errorf("Expected identical runs for the same seed, got %d and %d", first, second)
	}
	if first == 0 || first == 200 {
		t.Errorf("Expected a partial drop, got %d of 200 delivered", first)
	}
}

func TestFaults_Validate(t *testing.T) {
	tests := []struct {
		name    string
		faults  Faults
		wantErr bool
	}{
		{"zero", Faults{}, false},
		{"bounds", Faults{DropRate: 1, DuplicateRate: 1}, false},
		{"negative drop", Faults{DropRate: -0.1}, true},
		{"duplicate above one", Faults{DuplicateRate: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.faults.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

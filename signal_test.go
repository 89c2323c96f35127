package settings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSignalDispatchOrder(t *testing.T) {
	var sig Signal[string]
	var got []string
	first := sig.Connect(func(v string) { got = append(got, "first:"+v) })
	sig.Connect(func(v string) { got = append(got, "second:"+v) })

	sig.Emit("a")
	sig.Disconnect(first)
	sig.Disconnect(first)
	sig.Emit("b")

	if diff := cmp.Diff([]string{"first:a", "second:a", "second:b"}, got); diff != "" {
		t.Fatalf("unexpected dispatch (-want +got):\n%s", diff)
	}
	if sig.Len() != 1 {
		t.Fatalf("expected 1 handler, got %d", sig.Len())
	}
}

func TestSignalDisconnectDuringDispatch(t *testing.T) {
	var sig Signal[int]
	calls := 0
	var self Subscription
	self = sig.Connect(func(int) {
		calls++
		sig.Disconnect(self)
	})
	sig.Connect(func(int) { calls++ })

	sig.Emit(1)
	if calls != 2 {
		t.Fatalf("handlers connected at emit time all run, got %d calls", calls)
	}
	sig.Emit(2)
	if calls != 3 || sig.Len() != 1 {
		t.Fatalf("disconnected handler should not run again, got %d calls", calls)
	}
}

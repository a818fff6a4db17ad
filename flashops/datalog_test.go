package flashops

import (
	"context"
	"testing"
	"time"

	"github.com/kanjar-tools/aldlflash/session"
	"github.com/kanjar-tools/aldlflash/transport"
	"github.com/kanjar-tools/aldlflash/virtualecu"
)

func TestDatalogStreamDeliversRowsUntilStopped(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	ch, err := transport.Open(transport.Spec{Kind: transport.KindVirtualECU, VirtualECU: ecu})
	if err != nil {
		t.Fatalf("transport.Open: %v", err)
	}
	s := session.Open(ch, session.Config{})

	rows := make(chan Row, 16)
	stop := DatalogStream(context.Background(), s, 2*time.Millisecond, func(r Row) error {
		select {
		case rows <- r:
		default:
		}
		return nil
	})

	select {
	case r := <-rows:
		if len(r.Raw) != session.DatalogFieldCount {
			t.Errorf("row length = %d, want %d", len(r.Raw), session.DatalogFieldCount)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a datalog row")
	}

	if err := stop(); err != nil {
		t.Errorf("stop() = %v, want nil", err)
	}
}

func TestDatalogStreamRefusedOnceSilenced(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	ch, err := transport.Open(transport.Spec{Kind: transport.KindVirtualECU, VirtualECU: ecu})
	if err != nil {
		t.Fatalf("transport.Open: %v", err)
	}
	s := session.Open(ch, session.Config{})
	if err := s.Silence(context.Background()); err != nil {
		t.Fatalf("Silence: %v", err)
	}
	if _, err := s.DatalogFrame(context.Background()); err == nil {
		t.Error("DatalogFrame after Silence should be rejected")
	}
}

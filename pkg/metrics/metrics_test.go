package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FrameSent(1, 5)
	m.FrameReceived(1, 5)
	m.FrameDropped(DropChecksum)
	m.SetConnected(true)
	m.TransferDone(Outbound, Completed, 10)
	m.PingSent()
	m.KeepaliveDisconnect()
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Options{Registry: reg, Namespace: "test"})

	m.FrameSent(0x0001, 5)
	m.FrameSent(0x0001, 5)
	m.FrameReceived(0x0100, 6)
	m.FrameDropped(DropChecksum)
	m.SetConnected(true)
	m.TransferDone(Inbound, Completed, 12000)
	m.TransferDone(Outbound, Rejected, 0)

	if got := testutil.ToFloat64(m.framesSent.WithLabelValues("0x0001")); got != 2 {
		t.Errorf("frames sent = %v", got)
	}
	if got := testutil.ToFloat64(m.bytesSent); got != 10 {
		t.Errorf("bytes sent = %v", got)
	}
	if got := testutil.ToFloat64(m.framesReceived.WithLabelValues("0x0100")); got != 1 {
		t.Errorf("frames received = %v", got)
	}
	if got := testutil.ToFloat64(m.framesDropped.WithLabelValues(DropChecksum)); got != 1 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Errorf("connected = %v", got)
	}
	if got := testutil.ToFloat64(m.transfers.WithLabelValues(Outbound, Rejected)); got != 1 {
		t.Errorf("rejected transfers = %v", got)
	}

	n, err := testutil.GatherAndCount(reg, "test_engine_transfer_bytes")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("transfer_bytes series = %d", n)
	}
}

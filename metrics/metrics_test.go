package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()
}

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(connectionsActive)
	ConnectionOpened()
	ConnectionOpened()
	ConnectionClosed()
	if got := testutil.ToFloat64(connectionsActive); got != before+1 {
		t.Fatalf("active connections: got %v, want %v", got, before+1)
	}
	ConnectionClosed()
}

func TestRecordRequest(t *testing.T) {
	c := requests.WithLabelValues("DISPLAY_ORDERS", "ERROR")
	before := testutil.ToFloat64(c)
	RecordRequest("DISPLAY_ORDERS", "ERROR", 3*time.Millisecond)
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("requests_total: got %v, want %v", got, before+1)
	}
}

func TestProtocolError(t *testing.T) {
	c := protocolErrors.WithLabelValues(ReasonMagic)
	before := testutil.ToFloat64(c)
	ProtocolError(ReasonMagic)
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("protocol_errors_total: got %v, want %v", got, before+1)
	}
}

// Package proxytest provides an httptest-backed harness that drives the
// report proxy's producer and consumer websocket endpoints end-to-end,
// the way a real producer process and browser tab would.
package proxytest

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deltaproxy/deltaproxy/pkg/logging"
	"github.com/deltaproxy/deltaproxy/services/proxy"
	"github.com/deltaproxy/deltaproxy/services/proxy/wire"
)

// Harness runs a report proxy Service behind an httptest.Server.
type Harness struct {
	t      *testing.T
	Server *httptest.Server
	Svc    proxy.Service
}

// New builds a Harness with the given WaitForConnectionSecs and
// ThrottleSecs (both usually kept small in tests).
func New(t *testing.T, waitForConnectionSecs int, throttleSecs float64) *Harness {
	t.Helper()

	svc, err := proxy.New(proxy.Config{
		WaitForConnectionSecs: waitForConnectionSecs,
		ThrottleSecs:          throttleSecs,
		EnableMetrics:         false,
		LaunchBrowser:         false,
	}, logging.Default())
	if err != nil {
		t.Fatalf("proxy.New: %v", err)
	}

	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)

	return &Harness{t: t, Server: srv, Svc: svc}
}

func (h *Harness) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(h.Server.URL, "http") + path
}

// DialProducer opens the producer connection for localID/reportName.
func (h *Harness) DialProducer(localID, reportName string) *websocket.Conn {
	h.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/new/"+localID+"/"+reportName), nil)
	if err != nil {
		h.t.Fatalf("dial producer: %v", err)
	}
	return conn
}

// DialConsumer opens the consumer connection for reportName.
func (h *Harness) DialConsumer(reportName string) (*websocket.Conn, error) {
	h.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/stream/"+reportName), nil)
	return conn, err
}

// SendNewReport sends the mandatory first producer frame.
func (h *Harness) SendNewReport(conn *websocket.Conn, reportID string) {
	h.t.Helper()
	if err := conn.WriteJSON(wire.NewReportEnvelope(reportID)); err != nil {
		h.t.Fatalf("send new_report: %v", err)
	}
}

// SendDeltas sends a delta_list frame carrying the given strings as opaque
// JSON-string deltas, the way a producer would push rendered UI fragments.
func (h *Harness) SendDeltas(conn *websocket.Conn, values ...string) {
	h.t.Helper()
	deltas := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			h.t.Fatalf("marshal delta %q: %v", v, err)
		}
		deltas[i] = raw
	}
	if err := conn.WriteJSON(wire.DeltaListEnvelope(deltas)); err != nil {
		h.t.Fatalf("send delta_list: %v", err)
	}
}

// ReadDeltaStrings reads one delta_list envelope and decodes each delta as
// a JSON string, failing the test on any other frame shape.
func (h *Harness) ReadDeltaStrings(conn *websocket.Conn, timeout time.Duration) []string {
	h.t.Helper()
	env := h.ReadEnvelope(conn, timeout)
	if env.Type != wire.TypeDeltaList {
		h.t.Fatalf("expected delta_list, got %q", env.Type)
	}
	out := make([]string, len(env.Deltas))
	for i, raw := range env.Deltas {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			h.t.Fatalf("decode delta %d: %v", i, err)
		}
	}
	return out
}

// ReadEnvelope reads one frame within timeout, failing the test if none
// arrives in time.
func (h *Harness) ReadEnvelope(conn *websocket.Conn, timeout time.Duration) wire.Envelope {
	h.t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	var env wire.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		h.t.Fatalf("read envelope: %v", err)
	}
	return env
}

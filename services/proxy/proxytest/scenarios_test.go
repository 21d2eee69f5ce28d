package proxytest

import (
	"testing"
	"time"
)

// Scenario: a single producer registers a report and a single viewer
// attaches, receives the initial new_report frame followed by the deltas
// the producer pushed, in order (P2: ordering).
func TestSingleReportOneViewer(t *testing.T) {
	h := New(t, 5, 0.02)

	producer := h.DialProducer("pid-1", "sales-dashboard")
	defer producer.Close()
	h.SendNewReport(producer, "report-1")

	consumer, err := h.DialConsumer("sales-dashboard")
	if err != nil {
		t.Fatalf("dial consumer: %v", err)
	}
	defer consumer.Close()

	env := h.ReadEnvelope(consumer, time.Second)
	if env.ReportID != "report-1" {
		t.Fatalf("expected new_report with report-1, got %+v", env)
	}

	h.SendDeltas(producer, "a", "b", "c")

	got := h.ReadDeltaStrings(consumer, time.Second)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d deltas, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delta %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

// Scenario: a viewer that attaches after the producer has already pushed
// deltas still receives the full accumulated state (P3: no loss) as its
// first delta_list, not merely the deltas sent after attach.
func TestLateViewerReceivesAccumulatedState(t *testing.T) {
	h := New(t, 5, 0.02)

	producer := h.DialProducer("pid-1", "late-join")
	defer producer.Close()
	h.SendNewReport(producer, "report-1")
	h.SendDeltas(producer, "x", "y")

	// Give the producer goroutine time to enqueue before the consumer
	// attaches, so the test actually exercises the late-join path rather
	// than racing the producer's first write.
	time.Sleep(50 * time.Millisecond)

	consumer, err := h.DialConsumer("late-join")
	if err != nil {
		t.Fatalf("dial consumer: %v", err)
	}
	defer consumer.Close()

	h.ReadEnvelope(consumer, time.Second) // new_report

	got := h.ReadDeltaStrings(consumer, time.Second)
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("expected accumulated [x y], got %v", got)
	}
}

// Scenario: when a producer rotates in under a name already being
// consumed, the consumer is migrated to the new session and receives a
// fresh new_report frame carrying the new report id (P3: no loss across
// rotation).
func TestProducerRotationMidStream(t *testing.T) {
	h := New(t, 5, 0.02)

	producer1 := h.DialProducer("pid-1", "rotating")
	h.SendNewReport(producer1, "report-1")

	consumer, err := h.DialConsumer("rotating")
	if err != nil {
		t.Fatalf("dial consumer: %v", err)
	}
	defer consumer.Close()

	env := h.ReadEnvelope(consumer, time.Second)
	if env.ReportID != "report-1" {
		t.Fatalf("expected report-1, got %+v", env)
	}

	producer1.Close()
	time.Sleep(50 * time.Millisecond)

	producer2 := h.DialProducer("pid-2", "rotating")
	defer producer2.Close()
	h.SendNewReport(producer2, "report-2")

	env = h.ReadEnvelope(consumer, 2*time.Second)
	if env.ReportID != "report-2" {
		t.Fatalf("expected migration to report-2, got %+v", env)
	}
}

// Scenario: a session with no consumer for longer than
// WaitForConnectionSecs is torn down by the startup timeout (event T),
// so a later stream attach finds nothing registered (P5: timeout safety).
func TestEmptySessionTimeout(t *testing.T) {
	h := New(t, 1, 0.02)
	producer := h.DialProducer("pid-1", "abandoned")
	defer producer.Close()
	h.SendNewReport(producer, "report-1")

	time.Sleep(1500 * time.Millisecond)

	consumer, err := h.DialConsumer("abandoned")
	if err == nil {
		consumer.Close()
		t.Fatalf("expected stream attach to fail after startup timeout, connection succeeded")
	}
}

// Scenario: two independent viewers on two independent reports each see
// only their own report's deltas (P1: registry uniqueness), and the
// proxy serves both without interference.
func TestTwoViewersOrderingIndependence(t *testing.T) {
	h := New(t, 5, 0.02)

	producerA := h.DialProducer("pid-a", "report-a")
	defer producerA.Close()
	h.SendNewReport(producerA, "id-a")

	producerB := h.DialProducer("pid-b", "report-b")
	defer producerB.Close()
	h.SendNewReport(producerB, "id-b")

	consumerA, err := h.DialConsumer("report-a")
	if err != nil {
		t.Fatalf("dial consumer A: %v", err)
	}
	defer consumerA.Close()

	consumerB, err := h.DialConsumer("report-b")
	if err != nil {
		t.Fatalf("dial consumer B: %v", err)
	}
	defer consumerB.Close()

	h.ReadEnvelope(consumerA, time.Second)
	h.ReadEnvelope(consumerB, time.Second)

	h.SendDeltas(producerA, "a1", "a2")
	h.SendDeltas(producerB, "b1")

	gotA := h.ReadDeltaStrings(consumerA, time.Second)
	gotB := h.ReadDeltaStrings(consumerB, time.Second)

	if len(gotA) != 2 || gotA[0] != "a1" || gotA[1] != "a2" {
		t.Fatalf("report-a: expected [a1 a2], got %v", gotA)
	}
	if len(gotB) != 1 || gotB[0] != "b1" {
		t.Fatalf("report-b: expected [b1], got %v", gotB)
	}
}

// Scenario: a producer that sends anything other than new_report as its
// first frame commits a protocol violation; the proxy closes the
// connection immediately rather than treating it as a delta. This only
// asserts the connection-level consequence; the fatal classification
// (protocol violation -> supervisor shutdown) is not asserted here.
func TestProducerProtocolViolationClosesConnection(t *testing.T) {
	h := New(t, 5, 0.02)

	producer := h.DialProducer("pid-1", "bad-producer")
	defer producer.Close()

	if err := producer.WriteJSON(map[string]string{"type": "delta_list"}); err != nil {
		t.Fatalf("write bad first frame: %v", err)
	}

	producer.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := producer.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close after protocol violation")
	}
}

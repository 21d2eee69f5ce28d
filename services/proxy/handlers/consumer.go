package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/deltaproxy/deltaproxy/pkg/logging"
	"github.com/deltaproxy/deltaproxy/pkg/validation"
	"github.com/deltaproxy/deltaproxy/services/proxy/config"
	"github.com/deltaproxy/deltaproxy/services/proxy/observability"
	"github.com/deltaproxy/deltaproxy/services/proxy/queue"
	"github.com/deltaproxy/deltaproxy/services/proxy/registry"
	"github.com/deltaproxy/deltaproxy/services/proxy/session"
	"github.com/deltaproxy/deltaproxy/services/proxy/wire"
)

var consumerUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Consumer returns the gin handler for GET /stream/:reportName. It looks
// up the current session for the name, attaches a consumer queue, sends
// the initial new_report frame, then runs the throttled stream loop:
// drain and write buffered deltas, wait (rate-limited) for an inbound
// close, and migrate to a newer session if the producer has rotated.
func Consumer(reg *registry.Registry, live *config.Live, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reportName := c.Param("reportName")
		if err := validation.ValidateReportName(reportName); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		sess, ok := reg.Lookup(reportName)
		if !ok {
			c.String(http.StatusNotFound, "report not found: %s", reportName)
			return
		}

		conn, err := consumerUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("consumer upgrade failed", "report_name", reportName, "error", err)
			return
		}
		defer conn.Close()

		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.ConsumerConnections.Inc()
			defer observability.DefaultMetrics.ConsumerConnections.Dec()
		}

		consumerID, q := attach(reg, reportName, sess, log)
		defer detach(reg, reportName, sess, consumerID, log)
		if conn.WriteJSON(wire.NewReportEnvelope(sess.ReportID())) != nil {
			return
		}

		// A token-bucket limiter paces delta delivery to the configured
		// throttle interval regardless of how bursty the producer is,
		// rather than a bare time.Sleep between drains. The limit is
		// re-read from live on every iteration so a config file edit
		// takes effect without restarting the connection.
		limiter := rate.NewLimiter(rate.Every(live.Get().ThrottleInterval()), 1)

		for {
			// Migration: if a newer producer has rotated in under this
			// name, drain this session's tail, detach, and re-attach to
			// the new current session before continuing the loop.
			if current, ok := reg.Lookup(reportName); !ok {
				return
			} else if current != sess {
				flush(conn, q)
				detach(reg, reportName, sess, consumerID, log)
				sess = current
				consumerID, q = attach(reg, reportName, sess, log)
				if conn.WriteJSON(wire.NewReportEnvelope(sess.ReportID())) != nil {
					return
				}
			}

			throttle := live.Get().ThrottleInterval()
			limiter.SetLimit(rate.Every(throttle))
			if err := limiter.Wait(c.Request.Context()); err != nil {
				return
			}
			if !flush(conn, q) {
				return
			}

			if err := waitForClose(conn, throttle); err != nil {
				if err == errWaitTimeout {
					continue
				}
				return
			}
			return // client sent close (or anything else): exit per spec
		}
	}
}

func attach(reg *registry.Registry, name string, sess *session.Session, log *logging.Logger) (int, *queue.Queue) {
	id, q := sess.AttachConsumer()
	reg.CancelTimeout(name)
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordTransition(observability.EventConsumerJoin)
	}
	log.WithReport(name, sess.ReportID()).Info("consumer attached")
	return id, q
}

func detach(reg *registry.Registry, name string, sess *session.Session, id int, log *logging.Logger) {
	sess.DetachConsumer(id)
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordTransition(observability.EventConsumerLeave)
	}
	log.WithReport(name, sess.ReportID()).Info("consumer detached")
	if sess.ShouldDropAfterConsumerGone() {
		reg.Deregister(name, sess)
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordTeardown(observability.TeardownConsumerClose)
		}
	}
}

// flush drains q and writes any buffered deltas to the wire as a single
// delta_list frame. Returns false if the write failed (transport-failure,
// treated as an orderly close by the caller).
func flush(conn *websocket.Conn, q *queue.Queue) bool {
	deltas := q.Drain()
	if len(deltas) == 0 {
		return true
	}
	return conn.WriteJSON(wire.DeltaListEnvelope(deltas)) == nil
}

var errWaitTimeout = &waitTimeoutError{}

type waitTimeoutError struct{}

func (*waitTimeoutError) Error() string { return "wait for consumer close timed out" }

// waitForClose waits up to d for an inbound message. A timeout returns
// errWaitTimeout so the caller loops; any received data message (a close
// envelope or any other type) returns nil, and a read error (including a
// websocket close frame) returns that error, both of which make the
// caller exit. The stream loop thus exits on any received message, not
// only on close.
func waitForClose(conn *websocket.Conn, d time.Duration) error {
	conn.SetReadDeadline(time.Now().Add(d))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return errWaitTimeout
		}
		return err // transport-failure or close frame: orderly exit
	}

	var env wire.Envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.Type != wire.TypeClose {
		// Not a close message; documented behavior is to exit anyway.
		return nil
	}
	return nil
}

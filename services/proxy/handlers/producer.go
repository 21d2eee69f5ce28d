package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deltaproxy/deltaproxy/pkg/logging"
	"github.com/deltaproxy/deltaproxy/pkg/validation"
	"github.com/deltaproxy/deltaproxy/services/proxy/observability"
	"github.com/deltaproxy/deltaproxy/services/proxy/proxyerr"
	"github.com/deltaproxy/deltaproxy/services/proxy/registry"
	"github.com/deltaproxy/deltaproxy/services/proxy/session"
	"github.com/deltaproxy/deltaproxy/services/proxy/wire"
)

var producerUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// FatalHandler is invoked when a producer connection hits a failure the
// specification classifies as non-recoverable (protocol violation or
// internal invariant violation). The supervisor wires this to its own
// shutdown trigger; producer-side failures are fail-fast at the process
// boundary.
type FatalHandler func(err error)

// Producer returns the gin handler for GET /new/:localID/:reportName. It
// upgrades the connection, requires a new_report message first, then
// requires every subsequent message to be a delta_list (any other type is
// a protocol violation), fanning deltas into the named session until the
// connection closes.
func Producer(reg *registry.Registry, onFatal FatalHandler, log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reportName := c.Param("reportName")
		localID := c.Param("localID")

		if err := validation.ValidateReportName(reportName); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		if err := validation.ValidateLocalID(localID); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		conn, err := producerUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("producer upgrade failed", "report_name", reportName, "local_id", localID, "error", err)
			return
		}
		defer conn.Close()

		var first wire.Envelope
		if err := conn.ReadJSON(&first); err != nil {
			log.Info("producer closed before new_report", "report_name", reportName, "local_id", localID, "error", err)
			return
		}
		if first.Type != wire.TypeNewReport {
			onFatal(proxyerr.Wrapf(proxyerr.ErrProducerProtocolViolation,
				"producer %s/%s sent %q before new_report", localID, reportName, first.Type))
			return
		}

		reportID := first.ReportID
		if reportID == "" {
			reportID = uuid.New().String()
		}
		sess := session.New(reportID)
		reg.Register(reportName, sess)
		reg.ArmTimeout(reportName, sess)
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.ProducerConnections.Inc()
			defer observability.DefaultMetrics.ProducerConnections.Dec()
		}
		rlog := log.WithReport(reportName, reportID)
		rlog.Info("producer attached")

		for {
			var env wire.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				break // transport-failure or clean close: treated as orderly LC-
			}
			switch env.Type {
			case wire.TypeDeltaList:
				sess.Enqueue(env.Deltas)
				if observability.DefaultMetrics != nil {
					observability.DefaultMetrics.RecordDeltas(len(env.Deltas))
				}
			default:
				onFatal(proxyerr.Wrapf(proxyerr.ErrProducerProtocolViolation,
					"producer %s/%s sent unrecognized frame type %q", localID, reportName, env.Type))
				return
			}
		}

		sess.MarkProducerGone()
		rlog.Info("producer detached")
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordTransition(observability.EventProducerLeave)
		}
		if sess.ShouldDropAfterProducerGone() {
			reg.Deregister(reportName, sess)
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.RecordTeardown(observability.TeardownProducerClose)
			}
		}
	}
}

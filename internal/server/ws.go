package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	// The API sits behind the edge proxy; origin policy is enforced
	// there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamJob upgrades the connection and relays job status updates until
// the job reaches a terminal state or the client disconnects.
func (s *Server) streamJob(c echo.Context) error {
	jobID := c.Param("id")
	scope := s.scope(c)

	// Reject unknown jobs before upgrading so the client gets a proper
	// HTTP status instead of an immediately closed socket.
	if _, err := s.registry.Active().GetScrapJob(c.Request().Context(), scope, jobID); err != nil {
		return writeErr(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logrus.WithError(err).Error("Websocket upgrade failed")
		return err
	}
	defer conn.Close()

	ctx := c.Request().Context()
	for job := range s.poller.Watch(ctx, scope, jobID) {
		if err := conn.WriteJSON(job); err != nil {
			logrus.WithFields(logrus.Fields{
				"job_id": jobID,
				"error":  err.Error(),
			}).Info("Websocket client gone, ending stream")
			return nil
		}
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
	return nil
}

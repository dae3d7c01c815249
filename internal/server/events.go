package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const eventsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents streams a job's status over a websocket: one JSON JobStatus
// per change, ending with a close frame once the job is done or failed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	j, ok := s.jobs.get(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Debug("websocket upgrade", "job_id", j.id, "error", err)
		return
	}
	defer conn.Close()

	// Reading is only needed to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last JobStatus
	sent := false
	for {
		st, changed := j.watch()
		if !sent || st != last {
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteJSON(st); err != nil {
				return
			}
			last, sent = st, true
		}
		if finished(st.State) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, st.State)
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		select {
		case <-changed:
		case <-gone:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

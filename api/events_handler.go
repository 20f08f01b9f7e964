package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/xraph/caseflow/stream"
)

// streamEvents serves a run's lifecycle events as server-sent events. The
// stream ends after a run.completed, run.failed or run.paused event, or
// when the client disconnects.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	runID, caseID, ok := a.lookupRun(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := a.events.Subscribe(fmt.Sprintf("sse-%s-%p", runID, r), stream.CaseTopic(caseID))
	defer a.events.RemoveSubscriber(sub.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case evt, open := <-sub.C():
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
			if evt.Type.Terminal() {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

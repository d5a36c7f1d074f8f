package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/corvid-labs/agentq/id"
	"github.com/corvid-labs/agentq/stream"
)

// streamJob serves GET /v1/jobs/{jobID}/stream as Server-Sent Events.
// The client first receives a snapshot of the job's current state, then
// one event per lifecycle mutation until the job reaches a terminal
// state or the client disconnects.
func (a *API) streamJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.parseJobID(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		a.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before fetching the snapshot. A job that turns terminal
	// between the snapshot read and the subscription would publish its
	// final event to nobody; subscribing first means the snapshot is
	// either already terminal or the terminal event reaches the channel.
	subID := id.NewSubscriberID().String()
	sub := a.broker.Subscribe(subID, stream.JobTopic(jobID.String()))
	defer a.broker.RemoveSubscriber(subID)

	j, err := a.exec.Store().Get(r.Context(), jobID)
	if err != nil {
		a.mapStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	a.writeSSE(w, "snapshot", j)
	flusher.Flush()

	// A terminal job produces no further events.
	if j.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case evt, open := <-sub.C():
			if !open {
				return
			}
			a.writeSSE(w, string(evt.Type), evt.Data)
			flusher.Flush()

			if terminalEvent(evt.Type) {
				return
			}
		}
	}
}

// writeSSE writes one SSE frame. data is JSON-encoded unless it already
// is raw JSON.
func (a *API) writeSSE(w http.ResponseWriter, event string, data any) {
	var payload []byte
	switch d := data.(type) {
	case json.RawMessage:
		payload = d
	default:
		encoded, err := json.Marshal(d)
		if err != nil {
			a.logger.Error("sse payload marshal failed", slog.String("error", err.Error()))
			return
		}
		payload = encoded
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func terminalEvent(t stream.EventType) bool {
	switch t {
	case stream.EventJobSucceeded, stream.EventJobFailed, stream.EventJobCancelled:
		return true
	}
	return false
}

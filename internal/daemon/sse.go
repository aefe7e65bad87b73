package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"reelsight/internal/api"
	"reelsight/internal/events"
	"reelsight/internal/logging"
)

// Comment lines keep proxies from closing quiet streams.
const sseKeepAlive = 15 * time.Second

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "unsupported", "streaming not supported")
		return
	}
	sub, err := s.daemon.manager.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer s.daemon.manager.Unsubscribe(sub)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, sseKeepAlive)
		evt, err := sub.Next(waitCtx)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		default:
			return
		}

		if err := writeEvent(w, evt); err != nil {
			logging.WithContext(ctx, s.logger).Debug("event stream write failed", logging.Error(err))
			return
		}
		flusher.Flush()
		if streamDone(evt) {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, evt events.Event) error {
	data, err := json.Marshal(api.FromEvent(evt))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, data)
	return err
}

// streamDone reports whether no further events can follow evt. A replayed
// snapshot of a finished job ends the stream as well.
func streamDone(evt events.Event) bool {
	if evt.Type.IsTerminal() {
		return true
	}
	return evt.Type == events.TypeSnapshot && evt.Snapshot.IsTerminal()
}

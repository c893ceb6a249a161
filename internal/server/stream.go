package server

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/kaleido/internal/app"
)

// StreamHandler serves the rendered kaleidoscope as MJPEG.
type StreamHandler struct {
	frames *app.Hub[app.EncodedFrame]
	log    *logrus.Entry
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames *app.Hub[app.EncodedFrame], log *logrus.Entry) *StreamHandler {
	return &StreamHandler{frames: frames, log: log}
}

// ServeHTTP writes every frame this client receives until it disconnects or
// the hub closes. A client that reads slowly skips frames.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.frames.Subscribe()
	defer sub.Close()
	log := h.log.WithField("subscriber", sub.ID.String())
	log.Debug("stream client connected")
	defer log.Debug("stream client disconnected")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		frame, ok := sub.Next(r.Context())
		if !ok {
			return
		}
		if err := writePart(w, frame.JPEG); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/kaleido/internal/app"
	"github.com/ayusman/kaleido/internal/controls"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message types on the control socket.
const (
	TypeLandmarks = "landmarks"
	TypeControls  = "controls"
	TypeResize    = "resize"
	TypeOverlays  = "overlays"
	TypeError     = "error"
)

// inbound is any message a client sends. Fields not used by Type are ignored.
type inbound struct {
	Type    string   `json:"type"`
	Zoom    *float64 `json:"zoom,omitempty"`
	Speed   *float64 `json:"speed,omitempty"`
	Width   int      `json:"width,omitempty"`
	Height  int      `json:"height,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

type landmarksMessage struct {
	Type  string       `json:"type"`
	Frame *app.Overlay `json:"frame"`
}

type controlsMessage struct {
	Type     string           `json:"type"`
	Controls controlsResponse `json:"controls"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ControlSocket pushes the landmarks of every redraw to the client and
// applies the control and resize messages it sends back.
type ControlSocket struct {
	pipeline Pipeline
	limit    rate.Limit
	burst    int
	log      *logrus.Entry
}

// NewControlSocket creates a ControlSocket. Each connection applies at most
// perSecond updates with bursts of burst. Messages arriving faster are
// coalesced: the newest value of each control is kept and applied as soon as
// the limit allows, so the last message a client sends always takes effect.
func NewControlSocket(p Pipeline, perSecond float64, burst int, log *logrus.Entry) *ControlSocket {
	return &ControlSocket{pipeline: p, limit: rate.Limit(perSecond), burst: burst, log: log}
}

// pending holds the control updates a connection has received but not yet
// applied. Later values overwrite earlier ones field by field.
type pending struct {
	mu       sync.Mutex
	controls controlsRequest
	viewport *controls.Viewport
	wake     chan struct{}
}

func newPending() *pending {
	return &pending{wake: make(chan struct{}, 1)}
}

func (p *pending) merge(req controlsRequest, viewport *controls.Viewport) {
	p.mu.Lock()
	if req.Zoom != nil {
		p.controls.Zoom = req.Zoom
	}
	if req.Speed != nil {
		p.controls.Speed = req.Speed
	}
	if req.Overlays != nil {
		p.controls.Overlays = req.Overlays
	}
	if viewport != nil {
		p.viewport = viewport
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// take empties the pending updates and returns them.
func (p *pending) take() (controlsRequest, *controls.Viewport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, viewport := p.controls, p.viewport
	p.controls, p.viewport = controlsRequest{}, nil
	return req, viewport
}

// conn serializes writes to one websocket.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *ControlSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)

	c := &conn{ws: ws}
	sub := h.pipeline.Overlays().Subscribe()
	defer sub.Close()
	log := h.log.WithField("subscriber", sub.ID.String())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The current controls let a new client position its sliders
	if err := c.send(controlsMessage{Type: TypeControls, Controls: currentControls(h.pipeline.Controls())}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		for {
			ov, ok := sub.Next(ctx)
			if !ok {
				// Unblock the reader when the hub closes
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				_ = ws.Close()
				return
			}
			if err := c.send(landmarksMessage{Type: TypeLandmarks, Frame: ov}); err != nil {
				_ = ws.Close()
				return
			}
		}
	}()

	updates := newPending()
	applied := make(chan struct{})
	go func() {
		defer close(applied)
		h.applyLoop(ctx, c, updates)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && ctx.Err() == nil {
				log.WithError(err).Debug("websocket read ended")
			}
			break
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.send(errorMessage{Type: TypeError, Error: "invalid message: " + err.Error()})
			continue
		}
		req, viewport, err := parseUpdate(msg)
		if err != nil {
			_ = c.send(errorMessage{Type: TypeError, Error: err.Error()})
			continue
		}
		updates.merge(req, viewport)
	}

	cancel()
	<-done
	<-applied
}

// applyLoop applies pending updates at the connection's rate and answers
// each applied batch with the resulting controls.
func (h *ControlSocket) applyLoop(ctx context.Context, c *conn, updates *pending) {
	limiter := rate.NewLimiter(h.limit, h.burst)
	ctl := h.pipeline.Controls()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates.wake:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		req, viewport := updates.take()
		if viewport == nil && req == (controlsRequest{}) {
			continue
		}
		if err := applyUpdate(ctl, req, viewport); err != nil {
			_ = c.send(errorMessage{Type: TypeError, Error: err.Error()})
			continue
		}
		_ = c.send(controlsMessage{Type: TypeControls, Controls: currentControls(ctl)})
	}
}

// parseUpdate checks a client message and turns it into the updates it asks
// for. Invalid messages are rejected before they can replace a valid update.
func parseUpdate(msg inbound) (controlsRequest, *controls.Viewport, error) {
	switch msg.Type {
	case TypeControls:
		req := controlsRequest{Zoom: msg.Zoom, Speed: msg.Speed, Overlays: msg.Enabled}
		if req == (controlsRequest{}) {
			return req, nil, errors.New("no control values given")
		}
		return req, nil, nil
	case TypeResize:
		v := controls.Viewport{Width: msg.Width, Height: msg.Height}
		if err := v.Validate(); err != nil {
			return controlsRequest{}, nil, err
		}
		return controlsRequest{}, &v, nil
	case TypeOverlays:
		if msg.Enabled == nil {
			return controlsRequest{}, nil, errors.New("overlays message needs enabled")
		}
		return controlsRequest{Overlays: msg.Enabled}, nil, nil
	default:
		return controlsRequest{}, nil, errors.New("unknown message type: " + msg.Type)
	}
}

func applyUpdate(ctl *controls.Controls, req controlsRequest, viewport *controls.Viewport) error {
	if viewport != nil {
		if err := ctl.SetViewport(*viewport); err != nil {
			return err
		}
	}
	if req == (controlsRequest{}) {
		return nil
	}
	return applyControls(ctl, req)
}

package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/kaleido/internal/controls"
)

var validate = validator.New()

// controlsResponse is the body of GET and PUT /api/controls.
type controlsResponse struct {
	Zoom     float64 `json:"zoom"`
	Speed    float64 `json:"speed"`
	Overlays bool    `json:"overlays"`
	Ranges   struct {
		Zoom  controls.Range `json:"zoom"`
		Speed controls.Range `json:"speed"`
	} `json:"ranges"`
}

// controlsRequest fields are optional; absent fields keep their value.
type controlsRequest struct {
	Zoom     *float64 `json:"zoom"`
	Speed    *float64 `json:"speed"`
	Overlays *bool    `json:"overlays"`
}

type viewportRequest struct {
	Width  int `json:"width" validate:"required,min=1,max=8192"`
	Height int `json:"height" validate:"required,min=1,max=8192"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Pipeline.Status())
}

func (s *Server) handleGetControls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentControls(s.config.Pipeline.Controls()))
}

func (s *Server) handlePutControls(w http.ResponseWriter, r *http.Request) {
	var req controlsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	ctl := s.config.Pipeline.Controls()
	if err := applyControls(ctl, req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, currentControls(ctl))
}

func (s *Server) handlePutViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", controls.ErrInvalidControl, err))
		return
	}

	v := controls.Viewport{Width: req.Width, Height: req.Height}
	if err := s.config.Pipeline.Controls().SetViewport(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// applyControls sets every field present in req. Values outside a range are
// clamped; non-finite values are rejected.
func applyControls(ctl *controls.Controls, req controlsRequest) error {
	if req.Zoom == nil && req.Speed == nil && req.Overlays == nil {
		return errors.New("no control values given")
	}
	if req.Zoom != nil {
		if _, err := ctl.SetZoom(*req.Zoom); err != nil {
			return err
		}
	}
	if req.Speed != nil {
		if _, err := ctl.SetSpeed(*req.Speed); err != nil {
			return err
		}
	}
	if req.Overlays != nil {
		ctl.SetOverlaysEnabled(*req.Overlays)
	}
	return nil
}

func currentControls(ctl *controls.Controls) controlsResponse {
	cfg := ctl.Snapshot()
	resp := controlsResponse{Zoom: cfg.Zoom, Speed: cfg.Speed, Overlays: ctl.OverlaysEnabled()}
	resp.Ranges.Zoom, resp.Ranges.Speed = ctl.Ranges()
	return resp
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/minidsp-bridge/internal/minidsp"
)

// commandRequest is the request body for POST /device/command.
//
// All fields are optional; only the populated ones are applied. Gathering
// them into one request lets a UI slider update volume without touching
// mute or source.
type commandRequest struct {
	Volume     *float64           `json:"volume,omitempty"`
	Mute       *bool              `json:"mute,omitempty"`
	Source     *string            `json:"source,omitempty"`
	Preset     *int               `json:"preset,omitempty"`
	Dirac      *bool              `json:"dirac,omitempty"`
	OutputGain *outputGainRequest `json:"output_gain,omitempty"`
}

// outputGainRequest addresses one output channel.
type outputGainRequest struct {
	Index int     `json:"index"`
	Gain  float64 `json:"gain"`
}

// handleGetState returns the latest state snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.coordinator.Snapshot()
	if snapshot == nil {
		writeServiceUnavailable(w, "no device state available yet")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device": s.coordinator.Name(),
		"ready":  s.coordinator.Ready(),
		"state":  snapshot,
	})
}

// handleCommand applies a partial configuration change to the device.
//
// Validation failures (unknown source, preset or gain out of range) return
// 400. Device failures return 502 so clients can distinguish a bad request
// from an unreachable DSP.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd, err := buildCommand(req)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if cmd.IsZero() {
		writeBadRequest(w, "command has no fields to apply")
		return
	}

	if err := s.coordinator.IssueCommand(r.Context(), cmd); err != nil {
		switch {
		case errors.Is(err, minidsp.ErrInvalidCommand):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Warn("device command failed", "error", err)
			writeBadGateway(w, "device command failed")
		}
		return
	}

	s.logger.Info("device command applied",
		"volume", req.Volume != nil,
		"mute", req.Mute != nil,
		"source", req.Source != nil,
		"preset", req.Preset != nil,
		"dirac", req.Dirac != nil,
		"output_gain", req.OutputGain != nil,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "applied",
		"state":  s.coordinator.Snapshot(),
	})
}

// handleRefresh forces an immediate poll of the device.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.RequestRefresh(r.Context()); err != nil {
		s.logger.Warn("device refresh failed", "error", err)
		writeBadGateway(w, "device refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device": s.coordinator.Name(),
		"ready":  s.coordinator.Ready(),
		"state":  s.coordinator.Snapshot(),
	})
}

// buildCommand merges the request fields into a single device command.
//
// Volume is clamped rather than rejected; source, preset and gain are
// validated and surface their package errors to the caller.
func buildCommand(req commandRequest) (minidsp.Command, error) {
	master := &minidsp.MasterStatus{}
	hasMaster := false

	if req.Volume != nil {
		master.Volume = minidsp.VolumeCommand(*req.Volume).MasterStatus.Volume
		hasMaster = true
	}
	if req.Mute != nil {
		master.Mute = req.Mute
		hasMaster = true
	}
	if req.Dirac != nil {
		master.Dirac = req.Dirac
		hasMaster = true
	}
	if req.Source != nil {
		sc, err := minidsp.SourceCommand(*req.Source)
		if err != nil {
			return minidsp.Command{}, err
		}
		master.Source = sc.MasterStatus.Source
		hasMaster = true
	}
	if req.Preset != nil {
		pc, err := minidsp.PresetCommand(*req.Preset)
		if err != nil {
			return minidsp.Command{}, err
		}
		master.Preset = pc.MasterStatus.Preset
		hasMaster = true
	}

	var cmd minidsp.Command
	if hasMaster {
		cmd.MasterStatus = master
	}
	if req.OutputGain != nil {
		oc, err := minidsp.OutputGainCommand(req.OutputGain.Index, req.OutputGain.Gain)
		if err != nil {
			return minidsp.Command{}, err
		}
		cmd.Outputs = oc.Outputs
	}
	return cmd, nil
}

package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/escpos-sim/internal/escpos"
	"github.com/nerrad567/escpos-sim/internal/faults"
	"github.com/nerrad567/escpos-sim/internal/history"
	"github.com/nerrad567/escpos-sim/internal/netsim"
	"github.com/nerrad567/escpos-sim/internal/printer"
)

// statusResponse is the full harness-visible emulator state.
type statusResponse struct {
	printer.State
	Running          bool   `json:"running"`
	ListenAddr       string `json:"listen_addr,omitempty"`
	Clients          int    `json:"clients"`
	CommandDelayMs   int64  `json:"command_delay_ms"`
	CommandsDecoded  int    `json:"commands_decoded"`
	NetworkDegraded  bool   `json:"network_degraded"`
	DisconnectActive bool   `json:"disconnect_active"`
}

// handleStatus returns the printer state snapshot plus listener details.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	netConds := s.emu.Network().Conditions()
	writeJSON(w, http.StatusOK, statusResponse{
		State:            s.emu.GetStatus(),
		Running:          s.emu.Running(),
		ListenAddr:       s.emu.Addr(),
		Clients:          s.emu.ClientCount(),
		CommandDelayMs:   s.emu.CommandDelay().Milliseconds(),
		CommandsDecoded:  s.emu.Faults().CommandCount(),
		NetworkDegraded:  len(netConds) > 0,
		DisconnectActive: s.emu.Network().DisconnectActive(),
	})
}

// commandView is the wire shape of one decoded command log entry.
type commandView struct {
	Seq     int64            `json:"seq"`
	ConnID  string           `json:"conn_id"`
	Kind    string           `json:"kind"`
	Raw     string           `json:"raw"` // hex encoding of the originating bytes
	Summary string           `json:"summary,omitempty"`
	At      time.Time        `json:"at"`
	Failure *history.Failure `json:"failure,omitempty"`
}

// handleCommands returns the decoded command log, newest last.
//
// Query parameters:
//   - limit: return only the most recent N entries
//   - kind: filter to a single command kind (e.g. "text", "cut")
//   - failures: "true" includes connection failure markers
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	kind := r.URL.Query().Get("kind")
	includeFailures := r.URL.Query().Get("failures") == "true"

	entries := s.emu.GetCommandLog()
	views := make([]commandView, 0, len(entries))
	for _, e := range entries {
		if e.Command == nil {
			if includeFailures {
				views = append(views, commandView{
					Seq:     e.Seq,
					ConnID:  e.ConnID,
					At:      e.At,
					Failure: e.Failure,
				})
			}
			continue
		}
		if kind != "" && string(e.Command.Kind) != kind {
			continue
		}
		views = append(views, commandView{
			Seq:     e.Seq,
			ConnID:  e.ConnID,
			Kind:    string(e.Command.Kind),
			Raw:     hex.EncodeToString(e.Command.Raw),
			Summary: summarise(e.Command),
			At:      e.At,
		})
	}

	if limit > 0 && len(views) > limit {
		views = views[len(views)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": views,
		"count":    len(views),
	})
}

// summarise renders a short human-readable description of a command payload.
func summarise(cmd *escpos.Command) string {
	switch p := cmd.Payload.(type) {
	case escpos.TextPayload:
		return p.Text
	case escpos.BarcodePayload:
		return p.Data
	case escpos.FeedPayload:
		return strconv.Itoa(p.Lines) + " line(s)"
	case escpos.CutPayload:
		return string(p.Mode)
	case escpos.AlignPayload:
		return string(p.Alignment)
	case escpos.QRPayload:
		if p.Function == escpos.QRFuncStore {
			return string(p.Data)
		}
		return "function " + strconv.Itoa(int(p.Function))
	case escpos.ImagePayload:
		return strconv.Itoa(p.Width) + "x" + strconv.Itoa(p.Height)
	default:
		return ""
	}
}

// handlePrintHistory returns the reconstructed print content.
func (s *Server) handlePrintHistory(w http.ResponseWriter, _ *http.Request) {
	jobs := s.emu.GetPrintHistory()
	if jobs == nil {
		jobs = []history.PrintJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleErrorHistory returns every fired and recovered simulated error.
func (s *Server) handleErrorHistory(w http.ResponseWriter, _ *http.Request) {
	hist := s.emu.GetErrorHistory()
	if hist == nil {
		hist = []faults.FiredError{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"errors": hist,
		"count":  len(hist),
	})
}

// simulateErrorRequest is the body for POST /errors/simulate.
type simulateErrorRequest struct {
	Kind string `json:"kind"`
}

// handleSimulateError forces an immediate printer error transition.
func (s *Server) handleSimulateError(w http.ResponseWriter, r *http.Request) {
	var req simulateErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Kind == "" {
		writeBadRequest(w, "kind is required")
		return
	}

	if err := s.emu.SimulateError(printer.ErrorKind(req.Kind)); err != nil {
		if errors.Is(err, printer.ErrUnknownErrorKind) {
			writeBadRequest(w, "unknown error kind: "+req.Kind)
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.emu.GetStatus())
}

// errorConditionRequest is the body for POST /errors/conditions. Durations
// are milliseconds; At is RFC 3339.
type errorConditionRequest struct {
	Kind           string    `json:"kind"`
	Trigger        string    `json:"trigger"`
	AfterCommands  int       `json:"after_commands,omitempty"`
	Probability    float64   `json:"probability,omitempty"`
	At             time.Time `json:"at,omitempty"`
	Repeat         bool      `json:"repeat,omitempty"`
	RecoverAfterMs int64     `json:"recover_after_ms,omitempty"`
}

// handleAddErrorCondition registers a programmable fault condition.
func (s *Server) handleAddErrorCondition(w http.ResponseWriter, r *http.Request) {
	var req errorConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id, err := s.emu.Faults().AddCondition(faults.Condition{
		Kind:          printer.ErrorKind(req.Kind),
		Trigger:       faults.Trigger(req.Trigger),
		AfterCommands: req.AfterCommands,
		Probability:   req.Probability,
		At:            req.At,
		Repeat:        req.Repeat,
		RecoverAfter:  time.Duration(req.RecoverAfterMs) * time.Millisecond,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleListErrorConditions returns every registered fault condition.
func (s *Server) handleListErrorConditions(w http.ResponseWriter, _ *http.Request) {
	conds := s.emu.Faults().Conditions()
	if conds == nil {
		conds = []faults.ConditionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conditions": conds,
		"count":      len(conds),
	})
}

// handleRemoveErrorCondition deletes one fault condition by ID.
func (s *Server) handleRemoveErrorCondition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.emu.Faults().RemoveCondition(id); err != nil {
		writeNotFound(w, "condition not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

// handleClearErrorConditions deletes all fault conditions.
func (s *Server) handleClearErrorConditions(w http.ResponseWriter, _ *http.Request) {
	s.emu.Faults().Clear()
	w.WriteHeader(http.StatusNoContent)
}

// networkConditionRequest is the body for POST /network/conditions.
// Durations are milliseconds.
type networkConditionRequest struct {
	Kind       string  `json:"kind"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	LatencyMs  int64   `json:"latency_ms,omitempty"`
	JitterMs   int64   `json:"jitter_ms,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	MaxSize    int     `json:"max_size,omitempty"`
	Pattern    []bool  `json:"pattern,omitempty"`
}

// handleSetNetworkCondition installs a network degradation condition.
func (s *Server) handleSetNetworkCondition(w http.ResponseWriter, r *http.Request) {
	var req networkConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	handle, err := s.emu.Network().SetCondition(netsim.Kind(req.Kind), netsim.Params{
		Duration:   time.Duration(req.DurationMs) * time.Millisecond,
		Latency:    time.Duration(req.LatencyMs) * time.Millisecond,
		Jitter:     time.Duration(req.JitterMs) * time.Millisecond,
		Percentage: req.Percentage,
		MaxSize:    req.MaxSize,
		Pattern:    req.Pattern,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"handle": string(handle)})
}

// handleListNetworkConditions returns the active network conditions.
func (s *Server) handleListNetworkConditions(w http.ResponseWriter, _ *http.Request) {
	conds := s.emu.Network().Conditions()
	if conds == nil {
		conds = []netsim.ConditionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conditions": conds,
		"count":      len(conds),
	})
}

// handleClearNetworkCondition removes one network condition by handle.
func (s *Server) handleClearNetworkCondition(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if err := s.emu.Network().ClearCondition(netsim.Handle(handle)); err != nil {
		writeNotFound(w, "network condition not found: "+handle)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": handle})
}

// handleClearNetworkConditions removes every network condition.
func (s *Server) handleClearNetworkConditions(w http.ResponseWriter, _ *http.Request) {
	s.emu.Network().ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// handleReset restores the printer to its power-on state. History is kept.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.emu.Reset()
	writeJSON(w, http.StatusOK, s.emu.GetStatus())
}

// handleClearHistory empties the command, print and error histories.
func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.emu.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// commandDelayRequest is the body for POST /command-delay.
type commandDelayRequest struct {
	DelayMs int64 `json:"delay_ms"`
}

// handleSetCommandDelay sets the artificial per-command processing delay.
func (s *Server) handleSetCommandDelay(w http.ResponseWriter, r *http.Request) {
	var req commandDelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DelayMs < 0 {
		writeBadRequest(w, "delay_ms must not be negative")
		return
	}

	s.emu.SetCommandDelay(time.Duration(req.DelayMs) * time.Millisecond)
	writeJSON(w, http.StatusOK, map[string]int64{"delay_ms": req.DelayMs})
}

// handleGetCommandDelay returns the current per-command processing delay.
func (s *Server) handleGetCommandDelay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{
		"delay_ms": s.emu.CommandDelay().Milliseconds(),
	})
}

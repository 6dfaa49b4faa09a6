package httpapi

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/valyala/fasthttp"

	"github.com/statorio/stator/pkg/fsm"
)

// replayRequest is the body shared by the four replay endpoints.
type replayRequest struct {
	ModelClass string `json:"model_class"`
	ModelID    string `json:"model_id"`
	Column     string `json:"column_name"`
}

// parseReplayRequest decodes and validates the request body. It writes
// the failure envelope itself and reports whether the handler should
// continue.
func (s *Server) parseReplayRequest(ctx *fasthttp.RequestCtx) (*replayRequest, bool) {
	var req replayRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, failure("invalid_request", "invalid JSON body", nil))
		return nil, false
	}

	missing := map[string]string{}
	if req.ModelClass == "" {
		missing["model_class"] = "required"
	}
	if req.ModelID == "" {
		missing["model_id"] = "required"
	}
	if req.Column == "" {
		missing["column_name"] = "required"
	}
	if len(missing) > 0 {
		writeJSON(ctx, fasthttp.StatusBadRequest, failure("invalid_argument",
			"model_class, model_id and column_name are required", missing))
		return nil, false
	}

	if !s.registry.HasModelClass(req.ModelClass) {
		writeJSON(ctx, fasthttp.StatusNotFound, failure("not_registered",
			fmt.Sprintf("model class %q has no registered state machines", req.ModelClass), nil))
		return nil, false
	}
	return &req, true
}

func (s *Server) replayFailure(ctx *fasthttp.RequestCtx, err error) {
	if fsm.IsCode(err, fsm.ErrorCodeInvalidArgument) {
		writeJSON(ctx, fasthttp.StatusBadRequest, failure("invalid_argument", err.Error(), nil))
		return
	}
	s.log.Errorf("replay query failed: %v", err)
	writeJSON(ctx, fasthttp.StatusInternalServerError, failure("internal_error", "replay query failed", nil))
}

func (s *Server) handleHistory(ctx *fasthttp.RequestCtx) error {
	req, ok := s.parseReplayRequest(ctx)
	if !ok {
		return nil
	}

	history, err := s.replay.TransitionHistory(ctx, req.ModelClass, req.ModelID, req.Column)
	if err != nil {
		s.replayFailure(ctx, err)
		return nil
	}
	writeJSON(ctx, fasthttp.StatusOK, success(map[string]interface{}{
		"transitions": history,
		"count":       len(history),
	}, "transition history retrieved"))
	return nil
}

func (s *Server) handleReplay(ctx *fasthttp.RequestCtx) error {
	req, ok := s.parseReplayRequest(ctx)
	if !ok {
		return nil
	}

	result, err := s.replay.Replay(ctx, req.ModelClass, req.ModelID, req.Column)
	if err != nil {
		s.replayFailure(ctx, err)
		return nil
	}
	writeJSON(ctx, fasthttp.StatusOK, success(result, "transitions replayed"))
	return nil
}

func (s *Server) handleValidate(ctx *fasthttp.RequestCtx) error {
	req, ok := s.parseReplayRequest(ctx)
	if !ok {
		return nil
	}

	result, err := s.replay.ValidateHistory(ctx, req.ModelClass, req.ModelID, req.Column)
	if err != nil {
		s.replayFailure(ctx, err)
		return nil
	}
	msg := "history is consistent"
	if !result.Valid {
		msg = "history is inconsistent"
	}
	writeJSON(ctx, fasthttp.StatusOK, success(result, msg))
	return nil
}

func (s *Server) handleStatistics(ctx *fasthttp.RequestCtx) error {
	req, ok := s.parseReplayRequest(ctx)
	if !ok {
		return nil
	}

	stats, err := s.replay.Statistics(ctx, req.ModelClass, req.ModelID, req.Column)
	if err != nil {
		s.replayFailure(ctx, err)
		return nil
	}
	writeJSON(ctx, fasthttp.StatusOK, success(stats, "statistics computed"))
	return nil
}

// definitionSummary is one registry entry in the listing.
type definitionSummary struct {
	Key         string   `json:"key"`
	ModelClass  string   `json:"model_class"`
	Column      string   `json:"column_name"`
	Initial     *string  `json:"initial_state"`
	States      []string `json:"states"`
	Transitions int      `json:"transitions"`
}

// handleDefinitions lists registered machines. With model_class and
// column_name query parameters it returns a single machine, optionally
// rendered (format=mermaid|dot|ascii).
func (s *Server) handleDefinitions(ctx *fasthttp.RequestCtx) error {
	args := ctx.QueryArgs()
	modelClass := string(args.Peek("model_class"))
	column := string(args.Peek("column_name"))

	if modelClass != "" && column != "" {
		def, err := s.registry.Get(modelClass, column)
		if err != nil {
			writeJSON(ctx, fasthttp.StatusNotFound, failure("not_registered", err.Error(), nil))
			return nil
		}

		data := map[string]interface{}{
			"definition": summarize(def),
		}
		viz := fsm.NewVisualizer(def)
		switch format := string(args.Peek("format")); format {
		case "":
		case "mermaid":
			data["diagram"] = viz.ToMermaid()
		case "dot":
			data["diagram"] = viz.ToDOT()
		case "ascii":
			data["diagram"] = viz.ToASCII()
		default:
			writeJSON(ctx, fasthttp.StatusBadRequest, failure("invalid_argument",
				fmt.Sprintf("unknown format %q", format), nil))
			return nil
		}
		writeJSON(ctx, fasthttp.StatusOK, success(data, "definition retrieved"))
		return nil
	}

	defs := s.registry.Definitions()
	out := make([]definitionSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, summarize(def))
	}
	writeJSON(ctx, fasthttp.StatusOK, success(map[string]interface{}{
		"definitions": out,
		"count":       len(out),
	}, "definitions listed"))
	return nil
}

func summarize(def *fsm.RuntimeDefinition) definitionSummary {
	states := make([]string, 0, len(def.States))
	for name := range def.States {
		states = append(states, string(name))
	}
	sort.Strings(states)

	var initial *string
	if def.Initial != nil {
		v := string(*def.Initial)
		initial = &v
	}
	return definitionSummary{
		Key:         def.Key(),
		ModelClass:  def.ModelClass,
		Column:      def.Column,
		Initial:     initial,
		States:      states,
		Transitions: len(def.Transitions),
	}
}

func (s *Server) handleHealthz(ctx *fasthttp.RequestCtx) error {
	writeJSON(ctx, fasthttp.StatusOK, success(map[string]interface{}{
		"status":      "ok",
		"definitions": len(s.registry.Keys()),
	}, "service healthy"))
	return nil
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"scholaverse/apps/server/internal/export"
	"scholaverse/apps/server/internal/gateway"
	"scholaverse/apps/server/internal/rulestore"
	"scholaverse/scoring"
	"scholaverse/tier"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ruleView is a rule as shown to administrators. Options and Labels hold the
// decoded payload, or the raw stored text when it does not decode.
type ruleView struct {
	ID        int64     `json:"id"`
	UnitCode  string    `json:"unit_code"`
	Attribute string    `json:"attribute_type"`
	Tier      tier.Tier `json:"tier"`
	Options   any       `json:"options"`
	Labels    any       `json:"labels"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type createRuleRequest struct {
	UnitCode  string          `json:"unit_code"`
	Attribute string          `json:"attribute_type"`
	Tier      string          `json:"tier"`
	Options   json.RawMessage `json:"options"`
	Labels    json.RawMessage `json:"labels"`
	SortOrder int             `json:"sort_order"`
}

type updateRuleRequest struct {
	Options json.RawMessage `json:"options"`
	Labels  json.RawMessage `json:"labels"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/admin/rules", s.auth.RequireStaff(s.handleRules))
	mux.HandleFunc("/api/admin/rules/export", s.auth.RequireStaff(s.handleExportRules))
	mux.HandleFunc("/api/admin/rules/{id}", s.auth.RequireStaff(s.handleRule))
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRules(w, r)
	case http.MethodPost:
		s.createRule(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	switch r.Method {
	case http.MethodPut:
		s.updateRule(w, r, id)
	case http.MethodDelete:
		s.deleteRule(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	rules, err := s.store.List(ctx)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list rules failed")
		writeError(w, http.StatusInternalServerError, "list rules failed")
		return
	}

	grouped := make(map[string]map[string][]ruleView)
	for _, rule := range rules {
		byAttr, ok := grouped[rule.Group]
		if !ok {
			byAttr = make(map[string][]ruleView)
			grouped[rule.Group] = byAttr
		}
		byAttr[rule.Attribute] = append(byAttr[rule.Attribute], newRuleView(rule))
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UnitCode == "" || req.Attribute == "" || req.Tier == "" || len(req.Options) == 0 {
		writeError(w, http.StatusBadRequest, "unit_code, attribute_type, tier and options are required")
		return
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	options, err := decodeOptions(req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	labels := map[string]string{}
	if len(req.Labels) > 0 {
		if labels, err = decodeLabels(req.Labels); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	rule, err := s.store.Create(ctx, rulestore.NewRule{
		Group:     req.UnitCode,
		Attribute: req.Attribute,
		Tier:      t,
		Options:   options,
		Labels:    labels,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		s.writeStoreError(w, r, err, "create rule failed")
		return
	}

	s.publish(gateway.ActionCreated, rule)
	writeJSON(w, http.StatusCreated, newRuleView(rule))
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request, id int64) {
	var req updateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var patch rulestore.RulePatch
	if len(req.Options) > 0 {
		options, err := decodeOptions(req.Options)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Options = &options
	}
	if len(req.Labels) > 0 {
		labels, err := decodeLabels(req.Labels)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Labels = &labels
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	rule, err := s.store.Update(ctx, id, patch)
	if err != nil {
		s.writeStoreError(w, r, err, "update rule failed")
		return
	}

	s.publish(gateway.ActionUpdated, rule)
	writeJSON(w, http.StatusOK, newRuleView(rule))
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request, id int64) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	rule, err := s.store.Get(ctx, id)
	if err == nil {
		err = s.store.Delete(ctx, id)
	}
	if err != nil {
		s.writeStoreError(w, r, err, "delete rule failed")
		return
	}

	s.publish(gateway.ActionDeleted, rule)
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleExportRules(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	rules, err := s.store.List(ctx)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list rules for export failed")
		writeError(w, http.StatusInternalServerError, "export rules failed")
		return
	}
	var buf bytes.Buffer
	if err := export.WriteRulesXLSX(&buf, rules); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("render rules workbook failed")
		writeError(w, http.StatusInternalServerError, "export rules failed")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="attribute_rules.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var verr *rulestore.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, rulestore.ErrDuplicateRule):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rulestore.ErrNotFound):
		writeError(w, http.StatusNotFound, "rule not found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func (s *Server) publish(action string, rule scoring.AttributeRule) {
	s.events.Publish(gateway.Event{
		Type:      gateway.EventRulesChanged,
		Action:    action,
		RuleID:    rule.ID,
		Group:     rule.Group,
		Attribute: rule.Attribute,
		Tier:      rule.Tier.String(),
	})
}

func newRuleView(rule scoring.AttributeRule) ruleView {
	view := ruleView{
		ID:        rule.ID,
		UnitCode:  rule.Group,
		Attribute: rule.Attribute,
		Tier:      rule.Tier,
		Options:   rule.OptionsJSON,
		Labels:    rule.LabelsJSON,
		SortOrder: rule.SortOrder,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
	if options, labels, err := rulestore.Payload(rule); err == nil && options != nil && labels != nil {
		view.Options = options
		view.Labels = labels
	}
	return view
}

func decodeOptions(raw json.RawMessage) ([]string, error) {
	var options []string
	if err := json.Unmarshal(raw, &options); err != nil || options == nil {
		return nil, fmt.Errorf("options must be an array of strings")
	}
	return options, nil
}

func decodeLabels(raw json.RawMessage) (map[string]string, error) {
	var labels map[string]string
	if err := json.Unmarshal(raw, &labels); err != nil || labels == nil {
		return nil, fmt.Errorf("labels must be an object of strings")
	}
	return labels, nil
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

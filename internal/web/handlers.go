package web

import (
	"database/sql"
	"net/http"

	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/lifecycle"
	"github.com/hpungsan/fern/internal/ops"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	database *sql.DB
	cfg      *config.Config
	machine  *lifecycle.Machine
	models   ops.ModelLister
}

// NewHandlers creates a new Handlers instance. Every request shares the
// one prediction session held by machine.
func NewHandlers(database *sql.DB, cfg *config.Config, machine *lifecycle.Machine, models ops.ModelLister) *Handlers {
	return &Handlers{database: database, cfg: cfg, machine: machine, models: models}
}

// textBody is the cursor addressing shared by several endpoints.
type textBody struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
	Text   string `json:"text"`
	Marker string `json:"marker"`
}

func (b textBody) input() ops.TextInput {
	return ops.TextInput{Prefix: b.Prefix, Suffix: b.Suffix, Text: b.Text, Marker: b.Marker}
}

type revertBody struct {
	Completion string `json:"completion"`
	Prefix     string `json:"prefix"`
	Context    string `json:"context"`
}

type purgeBody struct {
	Confirm       bool `json:"confirm"`
	OlderThanDays *int `json:"older_than_days"`
}

// HandleComplete handles POST /v1/complete: predict at the cursor and wait.
func (h *Handlers) HandleComplete(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[textBody](w, r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.Complete(r.Context(), h.machine, ops.CompleteInput{TextInput: body.input()})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleAccept handles POST /v1/accept.
func (h *Handlers) HandleAccept(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Accept(h.machine, db.NewStore(h.database))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleCancel handles POST /v1/cancel.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, ops.Cancel(h.machine))
}

// HandleStatus handles GET /v1/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, ops.Status(h.machine))
}

// HandleConvert handles POST /v1/convert.
func (h *Handlers) HandleConvert(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[textBody](w, r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.Convert(ops.ConvertInput{TextInput: body.input()})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleRevert handles POST /v1/revert.
func (h *Handlers) HandleRevert(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[revertBody](w, r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.Revert(ops.RevertInput{
		Completion: body.Completion,
		Prefix:     body.Prefix,
		Context:    body.Context,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleClassify handles POST /v1/classify.
func (h *Handlers) HandleClassify(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[textBody](w, r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.Classify(ops.ClassifyInput{
		TextInput:     body.input(),
		SystemMessage: h.cfg.SystemMessage,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleHistory handles GET /v1/history.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	result, err := ops.History(h.database, ops.HistoryInput{
		Context:      r.URL.Query().Get("context"),
		AcceptedOnly: parseBoolParam(r, "accepted_only"),
		Limit:        parseIntParam(r, "limit", ops.DefaultHistoryLimit),
		Offset:       parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleFetch handles GET /v1/suggestions/{id}.
func (h *Handlers) HandleFetch(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Fetch(h.database, ops.FetchInput{ID: r.PathValue("id")})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleDelete handles DELETE /v1/suggestions/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(h.database, ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandlePurge handles POST /v1/purge. The body must carry "confirm": true.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[purgeBody](w, r)
	if err != nil {
		renderError(w, err)
		return
	}
	if !body.Confirm {
		renderError(w, errors.NewInvalidRequest(`confirm must be true`))
		return
	}

	result, err := ops.Purge(h.database, ops.PurgeInput{OlderThanDays: body.OlderThanDays})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleCheck handles GET /v1/check. A model query parameter overrides the
// configured model.
func (h *Handlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	model := h.cfg.Model
	if m := r.URL.Query().Get("model"); m != "" {
		model = m
	}

	result, err := ops.Check(r.Context(), h.models, ops.CheckInput{Host: h.cfg.Host, Model: model})
	if err != nil {
		renderError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Reachable {
		status = http.StatusBadGateway
	}
	renderJSON(w, status, result)
}

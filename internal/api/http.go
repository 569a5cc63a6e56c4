// Package api exposes the store to out-of-process UI surfaces over
// HTTP. The folder browser, detail editor, and signals browser are all
// thin clients of these routes; the store contract itself stays
// in-process.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casetree/internal/logger"
	"casetree/internal/rules"
	"casetree/internal/store"
	"casetree/internal/tree"
	"casetree/pkg/models"
)

// HTTPAPI serves store state and accepts operations.
type HTTPAPI struct {
	store *store.Store
}

// NewHTTPAPI creates the API around one store instance.
func NewHTTPAPI(s *store.Store) *HTTPAPI {
	return &HTTPAPI{store: s}
}

// SetupRoutes configures HTTP routes.
func (api *HTTPAPI) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /forest", api.handleForest)
	mux.HandleFunc("POST /ops", api.handleApply)
	mux.HandleFunc("GET /records/{id}", api.handleRecord)
	mux.HandleFunc("GET /records/{id}/signals", api.handleSignals)
	mux.HandleFunc("POST /records/{id}/signals", api.handleAttachSignal)
	mux.HandleFunc("GET /records/{id}/signals/export", api.handleExportSignals)
	mux.HandleFunc("GET /selection", api.handleGetSelection)
	mux.HandleFunc("PUT /selection", api.handleSetSelection)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", api.handleHealth)
	mux.HandleFunc("GET /readyz", api.handleHealth)
}

func (api *HTTPAPI) handleForest(w http.ResponseWriter, r *http.Request) {
	forest := api.store.Forest()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"forest":    forest,
		"nodes":     tree.CountNodes(forest),
		"timestamp": time.Now().UTC(),
	})
}

func (api *HTTPAPI) handleApply(w http.ResponseWriter, r *http.Request) {
	var op store.Operation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	forest, err := api.store.Apply(op)
	if err != nil {
		writeError(w, statusForOpError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"forest": forest})
}

func (api *HTTPAPI) handleRecord(w http.ResponseWriter, r *http.Request) {
	node := api.store.FindNode(r.PathValue("id"))
	rec, ok := node.(*models.Record)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("record not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (api *HTTPAPI) handleSignals(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sigs := api.store.SignalsFor(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordId": id,
		"signals":  sigs,
		"count":    len(sigs),
	})
}

func (api *HTTPAPI) handleAttachSignal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var sig models.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := api.store.AttachSignal(id, &sig); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordId": id,
		"signals":  api.store.SignalsFor(id),
	})
}

func (api *HTTPAPI) handleExportSignals(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sigs := api.store.SignalsFor(id)
	if len(sigs) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no signals for record"))
		return
	}

	var docs [][]byte
	for _, sig := range sigs {
		raw, stats, err := rules.Compile(sig)
		if err != nil {
			logger.Warnf("Skipping unexportable signal %s: %v", sig.ID, err)
			continue
		}
		docs = append(docs, raw)
		logger.Debugf("Exported signal %s: %d selections", sig.ID, stats.Selections)
	}
	if len(docs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, errors.New("no exportable signals for record"))
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	for i, raw := range docs {
		if i > 0 {
			w.Write([]byte("---\n"))
		}
		w.Write(raw)
	}
}

func (api *HTTPAPI) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"selectedItemId": api.store.Selection()})
}

func (api *HTTPAPI) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SelectedItemID string `json:"selectedItemId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := api.store.SetSelection(body.SelectedItemID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selectedItemId": body.SelectedItemID})
}

func (api *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusForOpError(err error) int {
	var notFound tree.NotFoundError
	var notFolder tree.NotAFolderError
	var cycle tree.CycleError
	var dup tree.DuplicateIDError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &notFolder), errors.As(err, &cycle), errors.As(err, &dup):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

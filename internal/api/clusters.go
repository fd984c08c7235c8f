package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/clustering"
)

// ListClustersHandler returns clusters, newest first. ?active=true limits
// the list to ACTIVE clusters.
func (h *Handlers) ListClustersHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	writeJSON(w, http.StatusOK, h.Engine.Clusters(activeOnly))
}

func (h *Handlers) GetClusterHandler(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Cluster(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, clustering.ErrClusterNotFound) {
			writeError(w, http.StatusNotFound, "cluster not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) ResolveClusterHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Engine.Resolve(id); err != nil {
		if errors.Is(err, clustering.ErrClusterNotFound) {
			writeError(w, http.StatusNotFound, "cluster not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c, err := h.Engine.Cluster(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

package radio

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// RegisterRoutes mounts the control API used by UI collaborators. UIs poll the
// GET endpoints; there are no push events.
func RegisterRoutes(router *mux.Router, c *Controller) {
	r := router.PathPrefix("/radio").Subrouter()

	r.HandleFunc("/start", handleStart(c)).Methods(http.MethodPost)
	r.HandleFunc("/stations", handleStations(c)).Methods(http.MethodGet)
	r.HandleFunc("/stations/{id}/play", handlePlayStation(c)).Methods(http.MethodPost)
	r.HandleFunc("/stop", handleStop(c)).Methods(http.MethodPost)
	r.HandleFunc("/mute", handleMute(c)).Methods(http.MethodPost)
	r.HandleFunc("/state", handleState(c)).Methods(http.MethodGet)
	r.HandleFunc("/metadata", handleMetadata(c)).Methods(http.MethodGet)
	r.HandleFunc("/spectrum", handleSpectrum(c)).Methods(http.MethodGet)
}

type startResponse struct {
	Started bool `json:"started"`
}

type stateResponse struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
	Muted bool   `json:"muted"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func handleStart(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := r.FormValue("url")
		if url == "" {
			http.Error(w, "url is required", http.StatusBadRequest)
			return
		}

		writeJSON(w, http.StatusOK, startResponse{Started: c.Start(url)})
	}
}

func handlePlayStation(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, ok := c.Lookup(id); !ok {
			http.Error(w, "station not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, startResponse{Started: c.StartStation(id)})
	}
}

func handleStop(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.Stop()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMute(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		muted, err := strconv.ParseBool(r.FormValue("muted"))
		if err != nil {
			http.Error(w, "muted must be true or false", http.StatusBadRequest)
			return
		}

		c.SetMute(muted)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleState(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := stateResponse{State: c.State(), Muted: c.Muted()}
		if err := c.LastError(); err != nil {
			resp.Error = err.Error()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleMetadata(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Metadata())
	}
}

func handleSpectrum(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		bands := make([]int, SpectrumBands)
		var sp Spectrum
		c.Spectrum(sp[:])
		for i, v := range sp {
			bands[i] = int(v)
		}

		writeJSON(w, http.StatusOK, bands)
	}
}

func handleStations(c *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Stations())
	}
}

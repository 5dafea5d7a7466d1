// SPDX-License-Identifier: GPL-3.0-or-later

package serviceapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// registerRequest/registerResponse mirror the teacher's RestRegisterRequest/
// RestRegisterResponse pair, field for field, down to the JSON key names.
type registerRequest struct {
	EndpointID string `json:"endpoint_id"`
}

type registerResponse struct {
	Error string `json:"error"`
	ID    string `json:"id,omitempty"`
}

type unregisterRequest struct {
	ID string `json:"id"`
}

type unregisterResponse struct {
	Error string `json:"error"`
}

type fetchRequest struct {
	ID string `json:"id"`
}

// bundleJSON is a flattened, REST-friendly rendering of a bpv7.Bundle's
// primary block and payload; Payload round-trips through Go's built-in
// base64 encoding of []byte by encoding/json.
type bundleJSON struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ReportTo    string `json:"report_to"`
	LifetimeMs  uint64 `json:"lifetime_ms"`
	Payload     []byte `json:"payload"`
}

type fetchResponse struct {
	Error   string       `json:"error"`
	Bundles []bundleJSON `json:"bundles"`
}

type sendRequest struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	LifetimeMs  uint64 `json:"lifetime_ms"`
	Payload     []byte `json:"payload"`
}

type sendResponse struct {
	Error string `json:"error"`
}

// NewRouter builds a *mux.Router serving reg's REST surface: /register,
// /unregister, /fetch, /send, the same four-verb shape as the teacher's
// RestAgent (whose fourth verb, /build, this package's /send folds the
// bundle-construction step into, since bpv7.Builder has no BuildFromMap
// equivalent to accept an arbitrary argument map).
func NewRouter(reg *Registry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/register", reg.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/unregister", reg.handleUnregister).Methods(http.MethodPost)
	r.HandleFunc("/fetch", reg.handleFetch).Methods(http.MethodPost)
	r.HandleFunc("/send", reg.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/ws/{id}", func(w http.ResponseWriter, req *http.Request) {
		reg.ServeWS(w, req, mux.Vars(req)["id"])
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("serviceapi: failed to write JSON response")
	}
}

func (reg *Registry) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	var resp registerResponse

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error = err.Error()
	} else if eid, err := bpv7.ParseEID(req.EndpointID); err != nil {
		resp.Error = err.Error()
	} else if id, err := reg.Register(eid); err != nil {
		resp.Error = err.Error()
	} else {
		resp.ID = id
	}

	writeJSON(w, resp)
}

func (reg *Registry) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req unregisterRequest
	var resp unregisterResponse

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error = err.Error()
	} else {
		reg.Unregister(req.ID)
	}

	writeJSON(w, resp)
}

func (reg *Registry) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	var resp fetchResponse

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error = err.Error()
	} else {
		resp.Bundles = make([]bundleJSON, 0)
		for _, bndl := range reg.Fetch(req.ID) {
			resp.Bundles = append(resp.Bundles, toBundleJSON(bndl))
		}
	}

	writeJSON(w, resp)
}

func (reg *Registry) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	var resp sendResponse

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.Error = err.Error()
		writeJSON(w, resp)
		return
	}
	endpoint, ok := reg.endpointOf(req.ID)
	if !ok {
		resp.Error = "serviceapi: unknown client id"
		writeJSON(w, resp)
		return
	}

	dest, err := bpv7.ParseEID(req.Destination)
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, resp)
		return
	}

	bndl, err := bpv7.NewBuilder().
		Source(endpoint).
		Destination(dest).
		CreationTimestampNow().
		Lifetime(time.Duration(req.LifetimeMs) * time.Millisecond).
		PayloadBlock(req.Payload).
		Build()
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, resp)
		return
	}

	if err := reg.Send(req.ID, bndl); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func toBundleJSON(bndl bpv7.Bundle) bundleJSON {
	var payload []byte
	if blk, ok := bndl.PayloadBlock(); ok {
		payload = blk.Data
	}
	return bundleJSON{
		Source:      bndl.Primary.Source.String(),
		Destination: bndl.Primary.Destination.String(),
		ReportTo:    bndl.Primary.ReportTo.String(),
		LifetimeMs:  bndl.Primary.Lifetime,
		Payload:     payload,
	}
}

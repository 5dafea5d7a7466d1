// SPDX-License-Identifier: GPL-3.0-or-later

package serviceapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRestRegisterFetchSend(t *testing.T) {
	d, table := newTestDispatcher(t)
	reg := NewRegistry(d, table)
	router := NewRouter(reg)

	post := func(path string, body interface{}, out interface{}) {
		t.Helper()
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: unexpected status %d: %s", path, rec.Code, rec.Body.String())
		}
		if out != nil {
			if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
				t.Fatalf("%s: unmarshal response: %v", path, err)
			}
		}
	}

	var regResp registerResponse
	post("/register", registerRequest{EndpointID: "dtn://local/app"}, &regResp)
	if regResp.Error != "" || regResp.ID == "" {
		t.Fatalf("unexpected register response: %+v", regResp)
	}

	bndl := buildBundle(t, "dtn://peer/", "dtn://local/app", []byte("hi"))
	if err := reg.Deliver(&bndl); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	var fetchResp fetchResponse
	post("/fetch", fetchRequest{ID: regResp.ID}, &fetchResp)
	if fetchResp.Error != "" {
		t.Fatalf("fetch error: %s", fetchResp.Error)
	}
	if len(fetchResp.Bundles) != 1 || string(fetchResp.Bundles[0].Payload) != "hi" {
		t.Fatalf("unexpected fetch response: %+v", fetchResp)
	}

	var sendResp sendResponse
	post("/send", sendRequest{ID: regResp.ID, Destination: "dtn://peer/", LifetimeMs: 60000, Payload: []byte("out")}, &sendResp)
	if sendResp.Error != "" {
		t.Fatalf("send error: %s", sendResp.Error)
	}

	var unregResp unregisterResponse
	post("/unregister", unregisterRequest{ID: regResp.ID}, &unregResp)
	if unregResp.Error != "" {
		t.Fatalf("unregister error: %s", unregResp.Error)
	}
	if _, ok := reg.endpointOf(regResp.ID); ok {
		t.Fatalf("expected client to be forgotten after /unregister")
	}
}

func TestRestSendRejectsUnknownClient(t *testing.T) {
	d, table := newTestDispatcher(t)
	reg := NewRegistry(d, table)
	router := NewRouter(reg)

	buf, _ := json.Marshal(sendRequest{ID: "no-such-client", Destination: "dtn://peer/"})
	req := httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp sendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == "" {
		t.Fatalf("expected an error for an unknown client id")
	}
}

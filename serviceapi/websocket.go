// SPDX-License-Identifier: GPL-3.0-or-later

package serviceapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// writeWait bounds how long a single WebSocket frame write may block,
// mirroring the teacher's WebsocketAgent write deadline.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient adapts a single *websocket.Conn into a liveClient, serialising
// writes the way the teacher's WebsocketAgent does: gorilla/websocket
// forbids concurrent writers on the same connection, so every pushBundle
// and close goes through writeMu.
type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (c *wsClient) pushBundle(bndl bpv7.Bundle) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}
	if err := bndl.MarshalCBOR(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ServeWS upgrades r to a WebSocket connection bound to the client id
// registered at id (created beforehand through Register or /register), and
// blocks pumping delivered bundles to the peer as CBOR-encoded binary
// frames until the connection closes, matching the teacher's
// WebsocketAgent.handleConnection loop.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request, id string) {
	if _, ok := r.endpointOf(id); !ok {
		http.Error(w, "serviceapi: unknown client id", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.WithError(err).WithField("client", id).Warn("serviceapi: websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	r.setLive(id, client)
	defer r.setLive(id, nil)

	for _, bndl := range r.Fetch(id) {
		if err := client.pushBundle(bndl); err != nil {
			log.WithError(err).WithField("client", id).Warn("serviceapi: failed to flush queued bundle")
			return
		}
	}

	// The only inbound traffic this surface expects is the close handshake;
	// pumping ReadMessage is what notices the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.WithField("client", id).Debug("serviceapi: websocket connection closed")
			return
		}
	}
}

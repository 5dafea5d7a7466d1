// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
[core]
node-id = "dtn://node-a/"
store-path = "/tmp/store"

[[listen]]
endpoint = "0.0.0.0:4556"

[[static-route]]
pattern = "dtn://node-b/**"
action = "forward"
cla = "tcpclv4://192.0.2.1:4556"

[[bpsec-key]]
source = "dtn://node-b/"
key = "00112233445566778899aabbccddeeff0011223344556677"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	local, err := cfg.LocalNode()
	if err != nil {
		t.Fatalf("LocalNode: %v", err)
	}
	if local.String() != "dtn://node-a/" {
		t.Fatalf("unexpected local node %v", local)
	}

	routes, err := cfg.BuildStaticRoutes()
	if err != nil {
		t.Fatalf("BuildStaticRoutes: %v", err)
	}
	if len(routes) != 1 || routes[0].Action.CLA != "tcpclv4://192.0.2.1:4556" {
		t.Fatalf("unexpected routes: %+v", routes)
	}

	ks, err := cfg.BuildKeyStore()
	if err != nil {
		t.Fatalf("BuildKeyStore: %v", err)
	}
	if len(ks.Keys(local)) != 0 {
		t.Fatalf("local node should have no bpsec key")
	}
}

func TestLoadRejectsNonSingletonNodeID(t *testing.T) {
	path := writeConfig(t, `
[core]
node-id = "dtn://node-a/app"
store-path = "/tmp/store"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject a node id with a demux path")
	}
}

func TestLoadRequiresNodeID(t *testing.T) {
	path := writeConfig(t, `
[core]
store-path = "/tmp/store"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject a missing node-id")
	}
}

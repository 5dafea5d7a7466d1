// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads this agent's TOML configuration file, grounded on
// the teacher's cmd/dtnd/configuration.go tomlConfig shape and generalised
// to this agent's storage/RIB/BPSec layout instead of dtn7-go's
// core.RoutingConf/agent registry.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/internal/nodeid"
)

// Config is the root of the TOML configuration file.
type Config struct {
	Core   CoreConfig
	Listen []CLAConfig         `toml:"listen"`
	Peer   []CLAConfig         `toml:"peer"`
	Static []StaticRouteConfig `toml:"static-route"`
	Keys   []KeyConfig         `toml:"bpsec-key"`
}

// CoreConfig describes the node's own identity and storage location,
// mirroring the teacher's coreConf block.
type CoreConfig struct {
	NodeID                  string `toml:"node-id"`
	StorePath               string `toml:"store-path"`
	StatusReports           bool   `toml:"status-reports"`
	MaxForwardingDelay      int    `toml:"max-forwarding-delay"`
	WaitSampleIntervalSecs  int    `toml:"wait-sample-interval"`
	TombstoneLifetimeHours  int    `toml:"tombstone-lifetime-hours"`
}

// CLAConfig describes one "listen" or "peer" convergence layer entry; this
// agent has a single CLA (tcpclv4), unlike the teacher's protocol-tagged
// convergenceConf, so there is no Protocol field to switch on.
type CLAConfig struct {
	// Endpoint is a "host:port" address: for Listen, where to accept
	// inbound TCPCLv4 connections; for Peer, where to dial out to one.
	Endpoint string
}

// StaticRouteConfig describes one RIB entry to install at start-up,
// generalising the teacher's routing algorithms (which compute routes
// dynamically) into the spec's declarative static table.
type StaticRouteConfig struct {
	// Pattern is an eidpattern.Parse-able destination pattern.
	Pattern string
	// Action selects the rib.ActionKind by name: "forward", "via", "drop".
	Action string
	// CLA is the forward target address, for Action == "forward".
	CLA string
	// Via is the next-hop EID, for Action == "via".
	Via string
	// Priority is decoded but not used: BuildStaticRoutes sets each
	// rib.Entry.Priority from the route's position in the file instead.
	Priority int
}

// KeyConfig associates a BPSec source EID with a hex-encoded symmetric
// key, loaded straight into a bpsec.StaticKeyStore.
type KeyConfig struct {
	Source string
	KeyHex string `toml:"key"`
}

// Load reads path, decodes it as TOML and validates core.node-id (present,
// parseable, and naming a node), core.store-path (present) and every
// bpsec-key source EID. Static-route patterns and via EIDs, and key hex,
// are checked only by BuildStaticRoutes/BuildKeyStore. Convergence-layer
// and RIB construction from the
// decoded CLAConfig/StaticRouteConfig/KeyConfig slices is left to the
// caller, since that wiring needs the live cla.Manager/rib.Table/
// bpsec.KeyStore this package has no business constructing itself.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if cfg.Core.NodeID == "" {
		return nil, fmt.Errorf("config: core.node-id is required")
	}
	eid, err := bpv7.ParseEID(cfg.Core.NodeID)
	if err != nil {
		return nil, fmt.Errorf("config: core.node-id %q: %w", cfg.Core.NodeID, err)
	}
	if err := nodeid.Validate(eid); err != nil {
		return nil, fmt.Errorf("config: core.node-id: %w", err)
	}

	if cfg.Core.StorePath == "" {
		return nil, fmt.Errorf("config: core.store-path is required")
	}

	for i, k := range cfg.Keys {
		if _, err := bpv7.ParseEID(k.Source); err != nil {
			return nil, fmt.Errorf("config: bpsec-key[%d].source %q: %w", i, k.Source, err)
		}
	}

	return &cfg, nil
}

// LocalNode parses the validated core.node-id back into an EID. Load has
// already confirmed this succeeds, so an error here would mean Load's own
// invariant was violated.
func (c *Config) LocalNode() (bpv7.EID, error) {
	return bpv7.ParseEID(c.Core.NodeID)
}

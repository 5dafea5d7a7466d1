// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"encoding/hex"
	"fmt"

	"github.com/hardy-dtn/bpa-go/bpsec"
	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/eidpattern"
	"github.com/hardy-dtn/bpa-go/rib"
)

// BuildKeyStore decodes every bpsec-key entry's hex key into a
// bpsec.StaticKeyStore, ready to hand to bpsec.NewProcessor.
func (c *Config) BuildKeyStore() (*bpsec.StaticKeyStore, error) {
	ks := bpsec.NewStaticKeyStore()
	for _, k := range c.Keys {
		source, err := bpv7.ParseEID(k.Source)
		if err != nil {
			return nil, fmt.Errorf("config: bpsec-key source %q: %w", k.Source, err)
		}
		key, err := hex.DecodeString(k.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: bpsec-key for %q: invalid hex: %w", k.Source, err)
		}
		ks.Add(source, key)
	}
	return ks, nil
}

// BuildStaticRoutes translates every static-route entry into a rib.Entry,
// in file order, each given Priority i to preserve that order as the
// tie-break within the RIB's priority-tier lookup.
func (c *Config) BuildStaticRoutes() ([]rib.Entry, error) {
	entries := make([]rib.Entry, 0, len(c.Static))
	for i, s := range c.Static {
		pattern, err := eidpattern.Parse(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("config: static-route[%d] pattern %q: %w", i, s.Pattern, err)
		}

		var action rib.Action
		switch s.Action {
		case "forward":
			if s.CLA == "" {
				return nil, fmt.Errorf("config: static-route[%d]: action forward requires cla", i)
			}
			action = rib.Action{Kind: rib.ActionForward, CLA: s.CLA}
		case "via":
			via, err := bpv7.ParseEID(s.Via)
			if err != nil {
				return nil, fmt.Errorf("config: static-route[%d] via %q: %w", i, s.Via, err)
			}
			action = rib.Action{Kind: rib.ActionVia, Via: via}
		case "drop":
			reason := bpv7.ReasonNoKnownRouteToDestination
			action = rib.Action{Kind: rib.ActionDrop, Drop: &reason}
		default:
			return nil, fmt.Errorf("config: static-route[%d]: unknown action %q", i, s.Action)
		}

		entries = append(entries, rib.Entry{
			Pattern:  pattern,
			Action:   action,
			Source:   "config",
			Priority: uint32(i),
		})
	}
	return entries, nil
}

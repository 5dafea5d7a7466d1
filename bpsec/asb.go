// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hardy-dtn/bpa-go/bpv7"
	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// SecurityContextID identifies which security context an ASB's parameters
// and results are interpreted under, RFC 9172 §3.6.
type SecurityContextID uint64

const (
	ContextBIBHMACSHA2  SecurityContextID = 1
	ContextBCBAESGCM    SecurityContextID = 2
)

const asbParamsPresentFlag uint64 = 0x01

// IDValue is a single (id, value) tuple as used for both security context
// parameters and security operation results. Every parameter/result this
// agent produces or consumes is either an unsigned integer or a byte
// string, so a tagged union covers RFC 9173's full parameter set without
// needing a generic CBOR value type.
type IDValue struct {
	ID      uint64
	IsBytes bool
	Uint    uint64
	Bytes   []byte
}

func uintIDValue(id, v uint64) IDValue   { return IDValue{ID: id, Uint: v} }
func bytesIDValue(id uint64, b []byte) IDValue { return IDValue{ID: id, IsBytes: true, Bytes: b} }

func (iv IDValue) marshal(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, iv.ID); err != nil {
		return err
	}
	if iv.IsBytes {
		return cbor.WriteBytes(w, iv.Bytes)
	}
	return cbor.WriteUint(w, iv.Uint)
}

func unmarshalIDValue(s *cbor.Series, maxRecursion int) (IDValue, error) {
	child, err := s.OpenArray(maxRecursion)
	if err != nil {
		return IDValue{}, err
	}
	if n, ok := child.Count(); !ok || n != 2 {
		return IDValue{}, fmt.Errorf("bpsec: id-value tuple must have 2 elements")
	}
	id, _, err := child.ParseUint()
	if err != nil {
		return IDValue{}, err
	}
	v, _, _, err := child.Next()
	if err != nil {
		return IDValue{}, err
	}
	switch v.Kind {
	case cbor.KindUint:
		return uintIDValue(id, v.Uint), nil
	case cbor.KindBytes:
		return bytesIDValue(id, v.Bytes), nil
	default:
		return IDValue{}, fmt.Errorf("bpsec: id-value tuple %d has unsupported value kind", id)
	}
}

func findIDValue(vs []IDValue, id uint64) (IDValue, bool) {
	for _, v := range vs {
		if v.ID == id {
			return v, true
		}
	}
	return IDValue{}, false
}

// TargetResults is the ordered list of (id, value) security results
// produced by a security operation against one target block.
type TargetResults []IDValue

// AbstractSecurityBlock is the shared structure of BIB and BCB block
// content, RFC 9172 §3.6.
type AbstractSecurityBlock struct {
	Targets        []uint64
	ContextID      SecurityContextID
	Source         bpv7.EID
	Parameters     []IDValue
	Results        []TargetResults // parallel to Targets
}

func (asb AbstractSecurityBlock) flags() uint64 {
	if len(asb.Parameters) > 0 {
		return asbParamsPresentFlag
	}
	return 0
}

// MarshalCBOR writes the ASB as its RFC 9172 §3.6 definite-length array.
func (asb AbstractSecurityBlock) MarshalCBOR(w io.Writer) error {
	n := uint64(5)
	if len(asb.Parameters) > 0 {
		n = 6
	}
	if err := cbor.WriteArrayHeader(w, n); err != nil {
		return err
	}

	if err := cbor.WriteArrayHeader(w, uint64(len(asb.Targets))); err != nil {
		return err
	}
	for _, t := range asb.Targets {
		if err := cbor.WriteUint(w, t); err != nil {
			return err
		}
	}

	if err := cbor.WriteUint(w, uint64(asb.ContextID)); err != nil {
		return err
	}
	if err := cbor.WriteUint(w, asb.flags()); err != nil {
		return err
	}
	if err := asb.Source.MarshalCBOR(w); err != nil {
		return err
	}

	if len(asb.Parameters) > 0 {
		if err := cbor.WriteArrayHeader(w, uint64(len(asb.Parameters))); err != nil {
			return err
		}
		for _, p := range asb.Parameters {
			if err := p.marshal(w); err != nil {
				return err
			}
		}
	}

	if err := cbor.WriteArrayHeader(w, uint64(len(asb.Results))); err != nil {
		return err
	}
	for _, tr := range asb.Results {
		if err := cbor.WriteArrayHeader(w, uint64(len(tr))); err != nil {
			return err
		}
		for _, r := range tr {
			if err := r.marshal(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// Bytes encodes this ASB into a standalone byte slice, suitable as a
// Block's Data.
func (asb AbstractSecurityBlock) Bytes() []byte {
	var buf bytes.Buffer
	_ = asb.MarshalCBOR(&buf)
	return buf.Bytes()
}

// DecodeASB parses an AbstractSecurityBlock out of raw block content.
func DecodeASB(data []byte) (AbstractSecurityBlock, error) {
	dec := cbor.NewDecoder(data)
	s := cbor.OpenSequence(dec)

	outer, err := s.OpenArray(16)
	if err != nil {
		return AbstractSecurityBlock{}, err
	}
	n, ok := outer.Count()
	if !ok || (n != 5 && n != 6) {
		return AbstractSecurityBlock{}, fmt.Errorf("bpsec: ASB array must have 5 or 6 elements")
	}

	targetsArr, err := outer.OpenArray(15)
	if err != nil {
		return AbstractSecurityBlock{}, err
	}
	var targets []uint64
	for {
		end, err := targetsArr.AtEnd()
		if err != nil {
			return AbstractSecurityBlock{}, err
		}
		if end {
			break
		}
		t, _, err := targetsArr.ParseUint()
		if err != nil {
			return AbstractSecurityBlock{}, err
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return AbstractSecurityBlock{}, ErrMissingSecurityTarget
	}

	contextID, _, err := outer.ParseUint()
	if err != nil {
		return AbstractSecurityBlock{}, err
	}
	flags, _, err := outer.ParseUint()
	if err != nil {
		return AbstractSecurityBlock{}, err
	}
	source, _, err := bpv7.UnmarshalEID(outer, 15)
	if err != nil {
		return AbstractSecurityBlock{}, err
	}

	var params []IDValue
	if flags&asbParamsPresentFlag != 0 {
		paramsArr, err := outer.OpenArray(15)
		if err != nil {
			return AbstractSecurityBlock{}, err
		}
		for {
			end, err := paramsArr.AtEnd()
			if err != nil {
				return AbstractSecurityBlock{}, err
			}
			if end {
				break
			}
			p, err := unmarshalIDValue(paramsArr, 14)
			if err != nil {
				return AbstractSecurityBlock{}, err
			}
			params = append(params, p)
		}
	}

	resultsArr, err := outer.OpenArray(15)
	if err != nil {
		return AbstractSecurityBlock{}, err
	}
	var results []TargetResults
	for {
		end, err := resultsArr.AtEnd()
		if err != nil {
			return AbstractSecurityBlock{}, err
		}
		if end {
			break
		}
		trArr, err := resultsArr.OpenArray(13)
		if err != nil {
			return AbstractSecurityBlock{}, err
		}
		var tr TargetResults
		for {
			end, err := trArr.AtEnd()
			if err != nil {
				return AbstractSecurityBlock{}, err
			}
			if end {
				break
			}
			r, err := unmarshalIDValue(trArr, 12)
			if err != nil {
				return AbstractSecurityBlock{}, err
			}
			tr = append(tr, r)
		}
		results = append(results, tr)
	}
	if len(results) != len(targets) {
		return AbstractSecurityBlock{}, fmt.Errorf("bpsec: ASB has %d targets but %d result sets", len(targets), len(results))
	}

	return AbstractSecurityBlock{
		Targets:    targets,
		ContextID:  SecurityContextID(contextID),
		Source:     source,
		Parameters: params,
		Results:    results,
	}, nil
}

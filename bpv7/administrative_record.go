// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hardy-dtn/bpa-go/internal/cbor"
)

// AdminRecordTypeStatusReport is the administrative record type code for a
// bundle status report, RFC 9171 §6.1.
const AdminRecordTypeStatusReport uint64 = 1

// BundleStatusItem is one element of a status report's bundle status
// information array, RFC 9171 §6.1.1.
type BundleStatusItem struct {
	Asserted        bool
	Time            DtnTime
	StatusRequested bool
}

// NewBundleStatusItem returns an assertion with no status time.
func NewBundleStatusItem(asserted bool) BundleStatusItem {
	return BundleStatusItem{Asserted: asserted}
}

// NewTimeReportingBundleStatusItem returns a positive assertion carrying the
// given status time.
func NewTimeReportingBundleStatusItem(t DtnTime) BundleStatusItem {
	return BundleStatusItem{Asserted: true, Time: t, StatusRequested: true}
}

func (bsi BundleStatusItem) MarshalCBOR(w io.Writer) error {
	if bsi.Asserted && bsi.StatusRequested {
		if err := cbor.WriteArrayHeader(w, 2); err != nil {
			return err
		}
		if err := cbor.WriteBool(w, bsi.Asserted); err != nil {
			return err
		}
		return cbor.WriteUint(w, uint64(bsi.Time))
	}
	if err := cbor.WriteArrayHeader(w, 1); err != nil {
		return err
	}
	return cbor.WriteBool(w, bsi.Asserted)
}

func UnmarshalBundleStatusItem(s *cbor.Series, maxRecursion int) (BundleStatusItem, bool, error) {
	child, err := s.OpenArray(maxRecursion)
	if err != nil {
		return BundleStatusItem{}, false, err
	}
	n, ok := child.Count()
	if !ok || (n != 1 && n != 2) {
		return BundleStatusItem{}, false, fmt.Errorf("bpv7: bundle status item array must have 1 or 2 elements")
	}

	asserted, s1, err := child.ParseBool()
	if err != nil {
		return BundleStatusItem{}, false, err
	}
	bsi := BundleStatusItem{Asserted: asserted}
	shortest := s1

	if n == 2 {
		t, s2, err := child.ParseUint()
		if err != nil {
			return BundleStatusItem{}, false, err
		}
		bsi.Time = DtnTime(t)
		bsi.StatusRequested = true
		shortest = shortest && s2
	}

	return bsi, shortest, nil
}

func (bsi BundleStatusItem) String() string {
	if !bsi.Asserted {
		return fmt.Sprintf("BundleStatusItem(%t)", bsi.Asserted)
	}
	return fmt.Sprintf("BundleStatusItem(%t, %v)", bsi.Asserted, bsi.Time)
}

// StatusInformationPos indexes the four mandatory entries of a status
// report's bundle status information array, RFC 9171 §6.1.1.
type StatusInformationPos int

const (
	ReceivedBundle StatusInformationPos = iota
	ForwardedBundle
	DeliveredBundle
	DeletedBundle

	statusInformationCount = 4
)

func (sip StatusInformationPos) String() string {
	switch sip {
	case ReceivedBundle:
		return "received"
	case ForwardedBundle:
		return "forwarded"
	case DeliveredBundle:
		return "delivered"
	case DeletedBundle:
		return "deleted"
	default:
		return "unknown"
	}
}

// StatusReport is the bundle status report administrative record, RFC 9171
// §6.1.1. ReportReason reuses ReasonCode: the wire encoding and value space
// for a status report's reason code is identical to a block/bundle
// processing reason code.
type StatusReport struct {
	StatusInformation []BundleStatusItem
	ReportReason       ReasonCode
	RefBundle          BundleID
}

// NewStatusReport builds a status report for bndl, asserting item with
// reason and -- when the referenced bundle requested status time -- the
// given time.
func NewStatusReport(bndl *Bundle, item StatusInformationPos, reason ReasonCode, t DtnTime) *StatusReport {
	sr := &StatusReport{
		StatusInformation: make([]BundleStatusItem, statusInformationCount),
		ReportReason:       reason,
		RefBundle:          bndl.ID(),
	}
	for i := range sr.StatusInformation {
		switch {
		case StatusInformationPos(i) == item && bndl.Primary.Flags.Has(ReportStatusTime):
			sr.StatusInformation[i] = NewTimeReportingBundleStatusItem(t)
		case StatusInformationPos(i) == item:
			sr.StatusInformation[i] = NewBundleStatusItem(true)
		default:
			sr.StatusInformation[i] = NewBundleStatusItem(false)
		}
	}
	return sr
}

// StatusInformations returns the asserted StatusInformationPos entries.
func (sr *StatusReport) StatusInformations() []StatusInformationPos {
	var sips []StatusInformationPos
	for i, si := range sr.StatusInformation {
		if si.Asserted {
			sips = append(sips, StatusInformationPos(i))
		}
	}
	return sips
}

func (sr *StatusReport) elementCount() uint64 {
	n := uint64(2)
	if sr.RefBundle.IsFragment {
		n += 2
	}
	return n
}

// MarshalCBOR writes the status report as a [status-info-array, reason,
// source, timestamp, (offset, length)?] array, RFC 9171 §6.1.1.
func (sr *StatusReport) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, sr.elementCount()+2); err != nil {
		return err
	}

	if err := cbor.WriteArrayHeader(w, uint64(len(sr.StatusInformation))); err != nil {
		return err
	}
	for _, si := range sr.StatusInformation {
		if err := si.MarshalCBOR(w); err != nil {
			return err
		}
	}

	if err := cbor.WriteUint(w, uint64(sr.ReportReason)); err != nil {
		return err
	}

	if err := sr.RefBundle.Source.MarshalCBOR(w); err != nil {
		return err
	}
	if err := sr.RefBundle.CreationTimestamp.MarshalCBOR(w); err != nil {
		return err
	}
	if sr.RefBundle.IsFragment {
		if err := cbor.WriteUint(w, sr.RefBundle.FragmentOffset); err != nil {
			return err
		}
		if err := cbor.WriteUint(w, sr.RefBundle.TotalDataLength); err != nil {
			return err
		}
	}
	return nil
}

func UnmarshalStatusReport(s *cbor.Series, maxRecursion int) (*StatusReport, bool, error) {
	child, err := s.OpenArray(maxRecursion)
	if err != nil {
		return nil, false, err
	}
	n, ok := child.Count()
	if !ok {
		return nil, false, fmt.Errorf("bpv7: status report array must be definite-length")
	}
	isFragment := false
	switch n {
	case 4:
	case 6:
		isFragment = true
	default:
		return nil, false, fmt.Errorf("bpv7: status report array must have 4 or 6 elements, got %d", n)
	}

	infoArr, err := child.OpenArray(maxRecursion - 1)
	if err != nil {
		return nil, false, err
	}
	infoN, ok := infoArr.Count()
	if !ok {
		return nil, false, fmt.Errorf("bpv7: status information array must be definite-length")
	}
	shortest := true
	info := make([]BundleStatusItem, infoN)
	for i := range info {
		bsi, s1, err := UnmarshalBundleStatusItem(infoArr, maxRecursion-2)
		if err != nil {
			return nil, false, err
		}
		info[i] = bsi
		shortest = shortest && s1
	}

	reason, s1, err := child.ParseUint()
	if err != nil {
		return nil, false, err
	}
	shortest = shortest && s1

	source, s2, err := UnmarshalEID(child, maxRecursion-1)
	if err != nil {
		return nil, false, err
	}
	shortest = shortest && s2

	ts, s3, err := UnmarshalCreationTimestamp(child, maxRecursion-1)
	if err != nil {
		return nil, false, err
	}
	shortest = shortest && s3

	sr := &StatusReport{
		StatusInformation: info,
		ReportReason:       ReasonCode(reason),
		RefBundle: BundleID{
			Source:            source,
			CreationTimestamp: ts,
			IsFragment:         isFragment,
		},
	}

	if isFragment {
		offset, s4, err := child.ParseUint()
		if err != nil {
			return nil, false, err
		}
		total, s5, err := child.ParseUint()
		if err != nil {
			return nil, false, err
		}
		sr.RefBundle.FragmentOffset = offset
		sr.RefBundle.TotalDataLength = total
		shortest = shortest && s4 && s5
	}

	return sr, shortest, nil
}

func (sr *StatusReport) RecordTypeCode() uint64 { return AdminRecordTypeStatusReport }

func (sr *StatusReport) String() string {
	return fmt.Sprintf("StatusReport(%v, %v, %v)", sr.StatusInformations(), sr.ReportReason, sr.RefBundle)
}

// EncodeAdministrativeRecord wraps ar in the [record-type-code, record]
// array RFC 9171 §6.1 mandates for an administrative record's payload.
// The only AdministrativeRecord this agent produces or consumes is
// StatusReport (spec's sole specified case); a registry for additional
// record types is not built since nothing in this agent needs one.
func EncodeAdministrativeRecord(sr *StatusReport) []byte {
	var buf bytes.Buffer
	_ = cbor.WriteArrayHeader(&buf, 2)
	_ = cbor.WriteUint(&buf, sr.RecordTypeCode())
	_ = sr.MarshalCBOR(&buf)
	return buf.Bytes()
}

// DecodeAdministrativeRecord parses an administrative-record payload,
// returning the decoded StatusReport. Any other record type code is
// reported as an error: this agent has nothing else to decode it into.
func DecodeAdministrativeRecord(data []byte) (*StatusReport, error) {
	dec := cbor.NewDecoder(data)
	s := cbor.OpenSequence(dec)

	child, err := s.OpenArray(8)
	if err != nil {
		return nil, fmt.Errorf("bpv7: malformed administrative record: %w", err)
	}
	if n, ok := child.Count(); !ok || n != 2 {
		return nil, fmt.Errorf("bpv7: administrative record array must have 2 elements")
	}

	typeCode, _, err := child.ParseUint()
	if err != nil {
		return nil, fmt.Errorf("bpv7: malformed administrative record type code: %w", err)
	}
	if typeCode != AdminRecordTypeStatusReport {
		return nil, fmt.Errorf("bpv7: unsupported administrative record type code %d", typeCode)
	}

	sr, _, err := UnmarshalStatusReport(child, 8)
	if err != nil {
		return nil, fmt.Errorf("bpv7: malformed status report: %w", err)
	}
	return sr, nil
}

// SPDX-License-Identifier: GPL-3.0-or-later

package eidpattern

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Parse compiles the textual pattern language described in the package
// doc comment into a Pattern.
func Parse(s string) (Pattern, error) {
	if s == "*:**" {
		return Pattern{AnyScheme: true}, nil
	}

	p := &cursor{s: s}
	var items []Item
	for {
		item, err := p.parseItem()
		if err != nil {
			return Pattern{}, err
		}
		items = append(items, item)

		if p.pos >= len(p.s) {
			break
		}
		if p.s[p.pos] != '|' {
			return Pattern{}, p.expecting("|")
		}
		p.pos++
	}
	return Pattern{Items: items}, nil
}

type cursor struct {
	s   string
	pos int
}

func (c *cursor) expecting(tok string) error {
	end := c.pos + 1
	if end > len(c.s) {
		end = len(c.s)
	}
	return &ParseError{Kind: ErrExpecting, Token: tok, Span: Span{c.pos, end}}
}

func (c *cursor) parseItem() (Item, error) {
	colon := strings.IndexByte(c.s[c.pos:], ':')
	if colon < 0 {
		return Item{}, c.expecting(":")
	}
	scheme := c.s[c.pos : c.pos+colon]
	schemeStart := c.pos
	c.pos += colon + 1

	switch scheme {
	case "ipn":
		it, err := c.parseIpnBody()
		if err != nil {
			return Item{}, err
		}
		return Item{Scheme: ItemIpn, Ipn: it}, nil
	case "dtn":
		it, err := c.parseDtnBody()
		if err != nil {
			return Item{}, err
		}
		return Item{Scheme: ItemDtn, Dtn: it}, nil
	default:
		return Item{}, &ParseError{Kind: ErrInvalidScheme, Token: scheme, Span: Span{schemeStart, schemeStart + colon}}
	}
}

// --- ipn ---

func (c *cursor) parseIpnBody() (IpnItem, error) {
	alloc, err := c.parseIpnComponent()
	if err != nil {
		return IpnItem{}, err
	}
	if err := c.expectByte('.'); err != nil {
		return IpnItem{}, err
	}
	node, err := c.parseIpnComponent()
	if err != nil {
		return IpnItem{}, err
	}
	if err := c.expectByte('.'); err != nil {
		return IpnItem{}, err
	}
	service, err := c.parseIpnComponent()
	if err != nil {
		return IpnItem{}, err
	}
	return IpnItem{Allocator: alloc, Node: node, Service: service}, nil
}

func (c *cursor) expectByte(b byte) error {
	if c.pos >= len(c.s) || c.s[c.pos] != b {
		return c.expecting(string(b))
	}
	c.pos++
	return nil
}

func (c *cursor) parseIpnComponent() (IpnComponent, error) {
	if c.pos < len(c.s) && c.s[c.pos] == '*' {
		c.pos++
		return IpnComponent{Wildcard: true}, nil
	}
	if c.pos < len(c.s) && c.s[c.pos] == '[' {
		return c.parseIpnRangeList()
	}
	n, err := c.parseUint()
	if err != nil {
		return IpnComponent{}, err
	}
	return IpnComponent{Ranges: []IpnRange{{Lo: n, Hi: n}}}, nil
}

func (c *cursor) parseIpnRangeList() (IpnComponent, error) {
	c.pos++ // '['
	var ranges []IpnRange
	for {
		lo, err := c.parseUint()
		if err != nil {
			return IpnComponent{}, err
		}
		hi := lo
		if c.pos < len(c.s) && c.s[c.pos] == '-' {
			c.pos++
			hi, err = c.parseUint()
			if err != nil {
				return IpnComponent{}, err
			}
		}
		ranges = append(ranges, IpnRange{Lo: lo, Hi: hi})

		if c.pos < len(c.s) && c.s[c.pos] == ',' {
			c.pos++
			continue
		}
		break
	}
	if err := c.expectByte(']'); err != nil {
		return IpnComponent{}, err
	}
	return IpnComponent{Ranges: ranges}, nil
}

func (c *cursor) parseUint() (uint32, error) {
	start := c.pos
	for c.pos < len(c.s) && c.s[c.pos] >= '0' && c.s[c.pos] <= '9' {
		c.pos++
	}
	if c.pos == start {
		return 0, &ParseError{Kind: ErrInvalidIpnNumber, Token: c.remainderToken(), Span: Span{start, c.pos + 1}}
	}
	tok := c.s[start:c.pos]
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, &ParseError{Kind: ErrInvalidIpnNumber, Token: tok, Span: Span{start, c.pos}, cause: err}
	}
	return uint32(n), nil
}

func (c *cursor) remainderToken() string {
	end := c.pos + 1
	if end > len(c.s) {
		end = len(c.s)
	}
	return c.s[c.pos:end]
}

// --- dtn ---

func (c *cursor) parseDtnBody() (DtnItem, error) {
	if err := c.expectLiteral("//"); err != nil {
		return DtnItem{}, err
	}

	authority, err := c.parseDtnSegment(true)
	if err != nil {
		return DtnItem{}, err
	}

	if err := c.expectByte('/'); err != nil {
		return DtnItem{}, err
	}

	var segments []Segment
	for {
		seg, last, err := c.parseDtnPathSegment()
		if err != nil {
			return DtnItem{}, err
		}
		if last {
			return DtnItem{Authority: authority, Segments: segments, Last: seg}, nil
		}
		segments = append(segments, seg)
	}
}

func (c *cursor) expectLiteral(lit string) error {
	if !strings.HasPrefix(c.s[c.pos:], lit) {
		return c.expecting(lit)
	}
	c.pos += len(lit)
	return nil
}

// parseDtnPathSegment reads one "/"-terminated segment, or the unterminated
// final segment (last=true), from the current position to the next '/',
// the next '|' (which starts another item), or end of string.
func (c *cursor) parseDtnPathSegment() (Segment, bool, error) {
	rest := c.s[c.pos:]
	slash := strings.IndexAny(rest, "/|")
	if slash < 0 || rest[slash] == '|' {
		seg, err := c.parseDtnSegment(true)
		return seg, true, err
	}
	seg, err := c.parseDtnSegmentSlice(c.s[c.pos:c.pos+slash], false)
	if err != nil {
		return Segment{}, false, err
	}
	c.pos += slash + 1
	return seg, false, nil
}

// parseDtnSegment consumes up to the next '/' or '|' (or end of string, for
// the last-segment case) as one segment.
func (c *cursor) parseDtnSegment(multiWildcardAllowed bool) (Segment, error) {
	rest := c.s[c.pos:]
	if slash := strings.IndexAny(rest, "/|"); slash >= 0 {
		rest = rest[:slash]
	}
	seg, err := c.parseDtnSegmentSlice(rest, multiWildcardAllowed)
	if err != nil {
		return Segment{}, err
	}
	c.pos += len(rest)
	return seg, nil
}

func (c *cursor) parseDtnSegmentSlice(raw string, multiWildcardAllowed bool) (Segment, error) {
	start := c.pos
	switch {
	case raw == "**":
		if !multiWildcardAllowed {
			return Segment{}, &ParseError{Kind: ErrExpecting, Token: "segment", Span: Span{start, start + len(raw)}}
		}
		return Segment{Kind: SegMultiWildcard}, nil
	case raw == "*":
		return Segment{Kind: SegSingleWildcard}, nil
	case strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"):
		inner := raw[1 : len(raw)-1]
		decoded, uerr := url.QueryUnescape(inner)
		if uerr != nil {
			return Segment{}, &ParseError{Kind: ErrInvalidUtf8, Span: Span{start, start + len(raw)}}
		}
		re, rerr := regexp.Compile(decoded)
		if rerr != nil {
			return Segment{}, &ParseError{Kind: ErrInvalidRegEx, Token: decoded, Span: Span{start, start + len(raw)}, cause: rerr}
		}
		return Segment{Kind: SegRegex, Regex: re, raw: decoded}, nil
	case strings.HasPrefix(raw, "["):
		return Segment{}, &ParseError{Kind: ErrExpectingRegEx, Span: Span{start, start + len(raw)}}
	default:
		decoded, uerr := url.PathUnescape(raw)
		if uerr != nil {
			return Segment{}, &ParseError{Kind: ErrInvalidUtf8, Span: Span{start, start + len(raw)}}
		}
		return Segment{Kind: SegExact, Exact: decoded}, nil
	}
}

func itemString(it Item) string {
	switch it.Scheme {
	case ItemIpn:
		return "ipn:" + ipnComponentString(it.Ipn.Allocator) + "." + ipnComponentString(it.Ipn.Node) + "." + ipnComponentString(it.Ipn.Service)
	case ItemDtn:
		s := "dtn://" + segmentString(it.Dtn.Authority) + "/"
		for _, seg := range it.Dtn.Segments {
			s += segmentString(seg) + "/"
		}
		return s + segmentString(it.Dtn.Last)
	default:
		return "<invalid>"
	}
}

func ipnComponentString(c IpnComponent) string {
	if c.Wildcard {
		return "*"
	}
	if v, ok := c.exact(); ok {
		return strconv.FormatUint(uint64(v), 10)
	}
	s := "["
	for i, r := range c.Ranges {
		if i > 0 {
			s += ","
		}
		if r.Lo == r.Hi {
			s += strconv.FormatUint(uint64(r.Lo), 10)
		} else {
			s += strconv.FormatUint(uint64(r.Lo), 10) + "-" + strconv.FormatUint(uint64(r.Hi), 10)
		}
	}
	return s + "]"
}

func segmentString(s Segment) string {
	switch s.Kind {
	case SegMultiWildcard:
		return "**"
	case SegSingleWildcard:
		return "*"
	case SegRegex:
		return "[" + s.raw + "]"
	default:
		return url.PathEscape(s.Exact)
	}
}

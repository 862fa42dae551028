package domain

import (
	"strconv"
	"strings"
)

// SuggestionExtensionID marks a VID as a suggestion address rather than a stored annotation id.
const SuggestionExtensionID = "rec"

// VID grammar:
//
//	vid     = ext ":" payload
//	ext     = "rec"
//	payload = kind "." generation "." id "." a "." b
//	kind    = "s" | "r"
//	number  = "0" | nonzero-digit *digit
//
// For spans a/b are the span begin/end, for relations the source and target begins.
const (
	extSeparator     = ":"
	payloadSeparator = "."
	payloadFields    = 5
	kindSpanCode     = "s"
	kindRelationCode = "r"
)

// SuggestionAddress is the decoded form of a suggestion VID.
type SuggestionAddress struct {
	Kind       SuggestionKind
	Generation uint64
	ID         int
	A          int
	B          int
}

// EncodeVID produces the VID of a suggestion within the given generation.
func EncodeVID(generation uint64, s *Suggestion) string {
	return addressOf(generation, s).String()
}

func addressOf(generation uint64, s *Suggestion) SuggestionAddress {
	addr := SuggestionAddress{Kind: s.Kind, Generation: generation, ID: s.ID}
	if s.Kind == KindRelation {
		addr.A, addr.B = s.Source.Begin, s.Target.Begin
	} else {
		addr.A, addr.B = s.Span.Begin, s.Span.End
	}
	return addr
}

// String encodes the address.
func (a SuggestionAddress) String() string {
	kind := kindSpanCode
	if a.Kind == KindRelation {
		kind = kindRelationCode
	}
	var b strings.Builder
	b.WriteString(SuggestionExtensionID)
	b.WriteString(extSeparator)
	b.WriteString(kind)
	for _, n := range []uint64{a.Generation, uint64(a.ID), uint64(a.A), uint64(a.B)} {
		b.WriteString(payloadSeparator)
		b.WriteString(strconv.FormatUint(n, 10))
	}
	return b.String()
}

// matches reports whether the address designates s in the given generation.
func (a SuggestionAddress) matches(generation uint64, s *Suggestion) bool {
	return addressOf(generation, s) == a
}

// IsSuggestionVID reports whether vid carries the suggestion extension id.
// It does not validate the payload.
func IsSuggestionVID(vid string) bool {
	return strings.HasPrefix(vid, SuggestionExtensionID+extSeparator)
}

// DecodeVID parses a suggestion VID. Any string not produced by EncodeVID
// fails with a *MalformedAddressError.
func DecodeVID(vid string) (SuggestionAddress, error) {
	ext, payload, ok := strings.Cut(vid, extSeparator)
	if !ok {
		return SuggestionAddress{}, malformed(vid, "missing extension separator")
	}
	if ext != SuggestionExtensionID {
		return SuggestionAddress{}, malformed(vid, "unknown extension id")
	}

	fields := strings.Split(payload, payloadSeparator)
	if len(fields) != payloadFields {
		return SuggestionAddress{}, malformed(vid, "wrong number of payload fields")
	}

	var addr SuggestionAddress
	switch fields[0] {
	case kindSpanCode:
		addr.Kind = KindSpan
	case kindRelationCode:
		addr.Kind = KindRelation
	default:
		return SuggestionAddress{}, malformed(vid, "unknown suggestion kind")
	}

	nums := make([]uint64, 0, payloadFields-1)
	for _, f := range fields[1:] {
		n, err := parseCanonical(f)
		if err != nil {
			return SuggestionAddress{}, malformed(vid, err.Error())
		}
		nums = append(nums, n)
	}
	for _, n := range nums[1:] {
		if n > maxInt {
			return SuggestionAddress{}, malformed(vid, "number out of range")
		}
	}

	addr.Generation = nums[0]
	addr.ID = int(nums[1])
	addr.A = int(nums[2])
	addr.B = int(nums[3])

	if addr.Generation == 0 {
		return SuggestionAddress{}, malformed(vid, "generation must be positive")
	}
	if addr.Kind == KindSpan && addr.A > addr.B {
		return SuggestionAddress{}, malformed(vid, "span begin after end")
	}
	return addr, nil
}

const maxInt = uint64(^uint(0) >> 1)

type addressSyntaxError string

func (e addressSyntaxError) Error() string { return string(e) }

// parseCanonical accepts only the decimal form strconv.FormatUint produces.
func parseCanonical(s string) (uint64, error) {
	if s == "" {
		return 0, addressSyntaxError("empty number")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, addressSyntaxError("leading zero")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, addressSyntaxError("non-digit in number")
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, addressSyntaxError("number out of range")
	}
	return n, nil
}

func malformed(input, reason string) error {
	return &MalformedAddressError{Input: input, Reason: reason}
}

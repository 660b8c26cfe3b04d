// Package taxonomy holds the classification vocabulary used to categorise
// automotive security attacks and their decomposed steps. The axes follow the
// classification scheme from the publication the dataset accompanies; values
// are stored as free text in the database, so this package also provides
// normalisation helpers for reporting and validation.
package taxonomy

import (
	"regexp"
	"strings"
)

// SecurityProperty is a security property an attack violates.
type SecurityProperty string

const (
	PropertyConfidentiality SecurityProperty = "Confidentiality"
	PropertyIntegrity       SecurityProperty = "Integrity"
	PropertyAvailability    SecurityProperty = "Availability"
	PropertyAuthenticity    SecurityProperty = "Authenticity"
	PropertyAuthorization   SecurityProperty = "Authorization"
	PropertyNonRepudiation  SecurityProperty = "Non-Repudiation"
	PropertyPrivacy         SecurityProperty = "Privacy"
)

// KnownProperties lists the security properties the classification scheme
// recognises, in the order they are reported.
var KnownProperties = []SecurityProperty{
	PropertyConfidentiality,
	PropertyIntegrity,
	PropertyAvailability,
	PropertyAuthenticity,
	PropertyAuthorization,
	PropertyNonRepudiation,
	PropertyPrivacy,
}

// Interface is the access interface an attack uses to reach the vehicle.
type Interface string

const (
	InterfacePhysical   Interface = "Physical Access"
	InterfaceShortRange Interface = "Short-Range Wireless"
	InterfaceLongRange  Interface = "Long-Range Wireless"
)

// KnownInterfaces lists the recognised attack interfaces.
var KnownInterfaces = []Interface{
	InterfacePhysical,
	InterfaceShortRange,
	InterfaceLongRange,
}

// AttackClass is the top-level class of an attack in the scheme.
type AttackClass string

const (
	ClassDirect      AttackClass = "Direct"
	ClassIndirect    AttackClass = "Indirect"
	ClassTheoretical AttackClass = "Theoretical"
)

// KnownClasses lists the recognised attack classes.
var KnownClasses = []AttackClass{ClassDirect, ClassIndirect, ClassTheoretical}

// yearPattern matches a four digit year anywhere in a raw year field. The
// published dataset stores years as free text, sometimes with citation
// markers appended (e.g. "2015 [31]").
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ExtractYear returns the four digit year embedded in a raw year field, or
// an empty string if none is present.
func ExtractYear(raw string) string {
	return yearPattern.FindString(raw)
}

// Normalize canonicalises a classification value for grouping: trims
// whitespace, collapses internal runs of whitespace (the spreadsheets carry
// stray newlines inside cells), and title-cases nothing — original casing is
// preserved because the vocabulary is case-sensitive in the publication.
func Normalize(value string) string {
	fields := strings.Fields(value)
	return strings.Join(fields, " ")
}

// IsKnownProperty reports whether a normalised value is part of the
// recognised security property vocabulary. Compound cells such as
// "Integrity, Availability" are split on commas and each part checked.
func IsKnownProperty(value string) bool {
	if value == "" {
		return false
	}
	for _, part := range strings.Split(value, ",") {
		if !isSingleKnownProperty(Normalize(part)) {
			return false
		}
	}
	return true
}

func isSingleKnownProperty(value string) bool {
	for _, p := range KnownProperties {
		if strings.EqualFold(string(p), value) {
			return true
		}
	}
	return false
}

// IsKnownInterface reports whether a normalised value is one of the
// recognised attack interfaces.
func IsKnownInterface(value string) bool {
	for _, i := range KnownInterfaces {
		if strings.EqualFold(string(i), value) {
			return true
		}
	}
	return false
}

// IsKnownClass reports whether a normalised value is one of the recognised
// attack classes.
func IsKnownClass(value string) bool {
	for _, c := range KnownClasses {
		if strings.EqualFold(string(c), value) {
			return true
		}
	}
	return false
}

// SplitProperties splits a compound security property cell into its
// normalised parts.
func SplitProperties(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if n := Normalize(part); n != "" {
			out = append(out, n)
		}
	}
	return out
}

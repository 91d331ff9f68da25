package aggregation

import (
	"regexp"
	"strings"
)

// Role is the position a scanned code takes in a session.
type Role string

const (
	// RoleOuter is a child scan counted towards the current cycle.
	RoleOuter Role = "OUTER"
	// RoleParent caps a completed cycle.
	RoleParent Role = "PARENT"
	// RoleTarget is the FULL-mode root pallet, recorded once and never counted.
	RoleTarget Role = "TARGET"
)

// Level is the hierarchy level a composed code represents.
type Level string

const (
	LevelPackage Level = "PACKAGE"
	LevelPallet  Level = "PALLET"
)

// UnitClass is the tagged result of classifying a code record.
type UnitClass string

const (
	ClassOuter   UnitClass = "OUTER"
	ClassPackage UnitClass = "PACKAGE"
	ClassPallet  UnitClass = "PALLET"
	ClassUnknown UnitClass = "UNKNOWN"
)

var (
	palletValuePattern  = regexp.MustCompile(`(?i)(^|[^a-z])(pallet|pal|plt)([^a-z]|$)`)
	packageValuePattern = regexp.MustCompile(`(?i)(^|[^a-z])(package|pkg|pack)([^a-z]|$)`)
)

// Classify is the only place that looks at a code's value shape. An explicit
// sub-type on the record wins over the naming convention.
func Classify(c *Code) UnitClass {
	if c == nil {
		return ClassUnknown
	}
	switch c.Kind {
	case KindComposed:
		switch c.SubType {
		case SubTypePallet:
			return ClassPallet
		case SubTypePackage:
			return ClassPackage
		}
		return classifyValue(c.Value)
	case KindSingle:
		if c.UnitType == UnitOuter {
			return ClassOuter
		}
		return ClassUnknown
	default:
		return ClassUnknown
	}
}

func classifyValue(value string) UnitClass {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return ClassUnknown
	case palletValuePattern.MatchString(value):
		return ClassPallet
	case packageValuePattern.MatchString(value):
		return ClassPackage
	default:
		return ClassUnknown
	}
}

// ParentClass is the composed class that caps a cycle for the session type.
func ParentClass(t Type) UnitClass {
	if t == TypePallet {
		return ClassPallet
	}
	return ClassPackage
}

// ChildClass is the class counted inside a cycle. PALLET sessions aggregate
// packages; PACKAGE and FULL sessions aggregate outers.
func ChildClass(t Type) UnitClass {
	if t == TypePallet {
		return ClassPackage
	}
	return ClassOuter
}

// CycleLevel is the level of the parent that closes a cycle.
func CycleLevel(t Type) Level {
	if t == TypePallet {
		return LevelPallet
	}
	return LevelPackage
}

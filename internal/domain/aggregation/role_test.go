package aggregation

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		code *Code
		want UnitClass
	}{
		{"nil", nil, ClassUnknown},
		{"single outer", &Code{Value: "abc", Kind: KindSingle, UnitType: UnitOuter}, ClassOuter},
		{"single other", &Code{Value: "abc", Kind: KindSingle, UnitType: UnitOther}, ClassUnknown},
		{"pallet by value", &Code{Value: "PLT-0001", Kind: KindComposed}, ClassPallet},
		{"pallet long form", &Code{Value: "acme_pallet_7", Kind: KindComposed}, ClassPallet},
		{"package by value", &Code{Value: "PKG-0001", Kind: KindComposed}, ClassPackage},
		{"package embedded word", &Code{Value: "x.package.9", Kind: KindComposed}, ClassPackage},
		{"no convention", &Code{Value: "C-0001", Kind: KindComposed}, ClassUnknown},
		{"letters are not a separator", &Code{Value: "PALLETIZER", Kind: KindComposed}, ClassUnknown},
		{"explicit sub type wins", &Code{Value: "PKG-1", Kind: KindComposed, SubType: SubTypePallet}, ClassPallet},
		{"composed outer value", &Code{Value: "PLT-1", Kind: KindSingle, UnitType: UnitOther}, ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.code); got != tc.want {
				t.Fatalf("Classify=%s want %s", got, tc.want)
			}
		})
	}
}

func TestSessionTypeClasses(t *testing.T) {
	if ParentClass(TypePackage) != ClassPackage || ParentClass(TypeFull) != ClassPackage || ParentClass(TypePallet) != ClassPallet {
		t.Fatalf("unexpected parent classes")
	}
	if ChildClass(TypePallet) != ClassPackage || ChildClass(TypeFull) != ClassOuter {
		t.Fatalf("unexpected child classes")
	}
	if CycleLevel(TypePallet) != LevelPallet || CycleLevel(TypeFull) != LevelPackage {
		t.Fatalf("unexpected cycle levels")
	}
}

func TestCodeConfigured(t *testing.T) {
	if (&Code{}).Configured() {
		t.Fatalf("blank code is not configured")
	}
	if !(&Code{ProductData: []byte(`{"cycle_number":1}`)}).Configured() {
		t.Fatalf("product data marks a code configured")
	}
	if (&Code{ProductData: []byte(` {} `)}).Configured() {
		t.Fatalf("empty object is not product data")
	}
}

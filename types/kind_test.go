package types

import "testing"

func TestKindString(t *testing.T) {
	tests := []struct {
		want string
		kind Kind
	}{
		{"bool", KindBool},
		{"u8", KindU8},
		{"s64", KindS64},
		{"char", KindChar},
		{"string", KindString},
		{"record", KindRecord},
		{"list", KindList},
		{"variant", KindVariant},
		{"option", KindOption},
		{"result", KindResult},
		{"tuple", KindTuple},
		{"enum", KindEnum},
		{"flags", KindFlags},
		{"own", KindOwn},
		{"borrow", KindBorrow},
		{"unknown", Kind(255)},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := tc.kind.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestKindPredicates(t *testing.T) {
	for k := KindBool; k <= KindChar; k++ {
		if !k.IsPrimitive() {
			t.Errorf("%s should be primitive", k)
		}
	}
	for _, k := range []Kind{KindString, KindRecord, KindList, KindFlags, KindOwn} {
		if k.IsPrimitive() {
			t.Errorf("%s should not be primitive", k)
		}
	}
	for _, k := range []Kind{KindVariant, KindOption, KindResult, KindEnum} {
		if !k.IsVariant() {
			t.Errorf("%s should be variant-like", k)
		}
	}
	if KindRecord.IsVariant() || KindFlags.IsVariant() {
		t.Error("record and flags are not variant-like")
	}
	if !KindOwn.IsHandle() || !KindBorrow.IsHandle() || KindU32.IsHandle() {
		t.Error("IsHandle mismatch")
	}
}

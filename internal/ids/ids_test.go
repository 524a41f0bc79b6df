package ids

import "testing"

func TestToConditionIDRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "12345", "999999999999999999999999999"}
	for _, dec := range cases {
		cid, err := ToConditionID(dec)
		if err != nil {
			t.Fatalf("ToConditionID(%s): %v", dec, err)
		}
		if len(string(cid)) != 66 {
			t.Fatalf("ToConditionID(%s) = %s, want 66 chars (0x + 64 nibbles)", dec, cid)
		}
		back, err := ToDecimalMarketID(cid)
		if err != nil {
			t.Fatalf("ToDecimalMarketID(%s): %v", cid, err)
		}
		if back != dec {
			t.Fatalf("round trip mismatch: %s -> %s -> %s", dec, cid, back)
		}
	}
}

func TestNewConditionIDRejectsGarbage(t *testing.T) {
	if _, err := NewConditionID("not-hex"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
	if _, err := NewConditionID(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestNewConditionIDPads(t *testing.T) {
	cid, err := NewConditionID("0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0x" + "0000000000000000000000000000000000000000000000000000000000000abc"
	if string(cid) != want {
		t.Fatalf("got %s want %s", cid, want)
	}
}

func TestToConditionIDRejectsNegative(t *testing.T) {
	if _, err := ToConditionID("-5"); err == nil {
		t.Fatal("expected error for negative market id")
	}
}

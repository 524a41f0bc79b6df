package poller

import "testing"

func TestToMarketParsesAndValidates(t *testing.T) {
	gm := GammaMarket{
		ID:            "m1",
		Question:      "Will X happen?",
		ConditionID:   "0xabc",
		Active:        true,
		EndDate:       "2027-01-01T00:00:00Z",
		Liquidity:     "1000.5",
		Volume24hr:    5000,
		Outcomes:      `["NO","YES"]`,
		OutcomePrices: `["0.4","0.6"]`,
		ClobTokenIds:  `["t0","t1"]`,
	}
	m, err := toMarket(gm)
	if err != nil {
		t.Fatalf("toMarket: %v", err)
	}
	if len(m.Outcomes) != 2 || m.OutcomePrices[1] != 0.6 {
		t.Fatalf("unexpected market: %+v", m)
	}
	if m.Liquidity != 1000.5 {
		t.Fatalf("liquidity not parsed: %f", m.Liquidity)
	}
}

func TestToMarketRejectsMismatchedArrays(t *testing.T) {
	gm := GammaMarket{
		ID:            "m1",
		Active:        true,
		Outcomes:      `["NO","YES"]`,
		OutcomePrices: `["0.4"]`,
		ClobTokenIds:  `["t0","t1"]`,
	}
	if _, err := toMarket(gm); err == nil {
		t.Fatal("expected validation error on mismatched array lengths")
	}
}

func TestGammaMarketStatusMapping(t *testing.T) {
	cases := []struct {
		gm   GammaMarket
		want string
	}{
		{GammaMarket{Active: true}, "ACTIVE"},
		{GammaMarket{Closed: true}, "CLOSED"},
		{GammaMarket{Archived: true}, "ARCHIVED"},
		{GammaMarket{Closed: true, ResolutionStatus: "resolved"}, "RESOLVED"},
		{GammaMarket{ResolutionStatus: "cancelled"}, "CANCELLED"},
		{GammaMarket{}, "CLOSED"},
	}
	for _, c := range cases {
		if got := string(c.gm.status()); got != c.want {
			t.Fatalf("status() = %s, want %s", got, c.want)
		}
	}
}

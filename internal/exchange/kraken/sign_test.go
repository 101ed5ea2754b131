package kraken

import (
	"net/url"
	"testing"
)

// Vector from the Kraken REST API documentation.
func TestSign(t *testing.T) {
	secret := "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="
	form := url.Values{
		"nonce":     {"1616492376594"},
		"ordertype": {"limit"},
		"pair":      {"XBTUSD"},
		"price":     {"37500"},
		"type":      {"buy"},
		"volume":    {"1.25"},
	}
	got, err := sign(secret, "/0/private/AddOrder", "1616492376594", form)
	if err != nil {
		t.Fatal(err)
	}
	want := "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ=="
	if got != want {
		t.Errorf("sign() = %s, want %s", got, want)
	}
}

func TestSignBadSecret(t *testing.T) {
	if _, err := sign("not base64 !!!", "/0/private/Balance", "1", url.Values{}); err == nil {
		t.Fatal("expected error for undecodable secret")
	}
}

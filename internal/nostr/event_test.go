package nostr

import (
	"testing"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

func TestComputeEventID(t *testing.T) {
	// Vectors computed from the canonical serialization
	// [0, pubkey, created_at, kind, tags, content] with HTML escaping off.
	tests := []struct {
		name string
		evt  types.Event
		want string
	}{
		{
			name: "html chars and unicode stay unescaped",
			evt: types.Event{
				PubKey:    "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
				CreatedAt: 1700000000,
				Kind:      1,
				Tags:      [][]string{{"e", "abc"}, {"p", "def"}},
				Content:   "hello <world> & ünïcode",
			},
			want: "a6c2256a4307edfa5177682b778dd17f84034d96ef5545dedf0d8bbc15a6b782",
		},
		{
			name: "empty tags",
			evt: types.Event{
				PubKey:    "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
				CreatedAt: 1700000000,
				Kind:      1,
				Tags:      [][]string{},
				Content:   "plain",
			},
			want: "c9b19f14dc94b53a692341af2877a7acc9692a84a3fd0443b263602a31073d2c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeEventID(&tt.evt); got != tt.want {
				t.Errorf("ComputeEventID = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSignAndValidateRoundtrip(t *testing.T) {
	signer, err := NewLocalSigner("edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := signer.PubKey(), "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec"; got != want {
		t.Fatalf("PubKey = %s, want %s", got, want)
	}

	evt := types.Event{
		Kind:      1,
		CreatedAt: 1700000000,
		Tags:      [][]string{{"t", "test"}},
		Content:   "signed note",
	}
	if err := signer.Sign(&evt); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if evt.ID != ComputeEventID(&evt) {
		t.Error("signed event id does not match the canonical serialization")
	}
	if !ValidateEventSignature(&evt) {
		t.Error("signature does not validate")
	}

	// Tampering must break validation.
	evt.Content = "altered"
	evt.ID = ComputeEventID(&evt)
	if ValidateEventSignature(&evt) {
		t.Error("signature validated a tampered event")
	}
}

func TestNewLocalSignerRejectsBadKeys(t *testing.T) {
	if _, err := NewLocalSigner("not-hex"); err == nil {
		t.Error("want error for non-hex key")
	}
	if _, err := NewLocalSigner("abcd"); err == nil {
		t.Error("want error for short key")
	}
}

func TestParseEventFromInterface(t *testing.T) {
	raw := map[string]interface{}{
		"id":         "event1",
		"pubkey":     "alicepk",
		"created_at": float64(1700000000),
		"kind":       float64(1),
		"content":    "hi",
		"tags": []interface{}{
			[]interface{}{"e", "target", "wss://relay.test"},
		},
	}
	evt, ok := ParseEventFromInterface(raw)
	if !ok {
		t.Fatal("parse failed")
	}
	if evt.ID != "event1" || evt.PubKey != "alicepk" || evt.Kind != 1 || evt.CreatedAt != 1700000000 {
		t.Errorf("parsed = %+v", evt)
	}
	if len(evt.Tags) != 1 || evt.Tags[0][1] != "target" {
		t.Errorf("tags = %v", evt.Tags)
	}
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	raw := map[string]interface{}{
		"id":         "0000000000000000000000000000000000000000000000000000000000000000",
		"pubkey":     "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec",
		"created_at": float64(1700000000),
		"kind":       float64(1),
		"content":    "forged",
		"sig":        "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
	}
	if _, ok := ParseEventFromInterface(raw); ok {
		t.Error("accepted an event with an invalid signature")
	}
}

func TestParseEventRejectsNonMap(t *testing.T) {
	if _, ok := ParseEventFromInterface("not a map"); ok {
		t.Error("accepted a non-object payload")
	}
}

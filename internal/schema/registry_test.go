package schema

import (
	"encoding/json"
	"testing"
)

func TestLoad(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	t.Run("latest version present", func(t *testing.T) {
		v := reg.Latest()
		if v == nil {
			t.Fatal("Latest() = nil")
		}
		if v.Version != "1.0.0" {
			t.Errorf("latest version = %s", v.Version)
		}
		if len(v.Hash) != 64 {
			t.Errorf("hash length = %d, want 64 hex chars", len(v.Hash))
		}
		if len(v.ShortHash()) != 12 {
			t.Errorf("short hash length = %d, want 12", len(v.ShortHash()))
		}
	})

	t.Run("top level fields extracted", func(t *testing.T) {
		v := reg.Latest()
		want := []string{"ballot_statistics", "form_info", "vote_results"}
		if len(v.Fields) != len(want) {
			t.Fatalf("fields = %v, want %v", v.Fields, want)
		}
		for i, f := range want {
			if v.Fields[i] != f {
				t.Errorf("fields[%d] = %s, want %s", i, v.Fields[i], f)
			}
		}
	})

	t.Run("empty version resolves to latest", func(t *testing.T) {
		v, err := reg.Get("")
		if err != nil {
			t.Fatalf("Get(\"\") error = %v", err)
		}
		if v.Version != reg.Latest().Version {
			t.Errorf("Get(\"\") = %s, want latest", v.Version)
		}
	})

	t.Run("unknown version rejected", func(t *testing.T) {
		if _, err := reg.Get("9.9.9"); err == nil {
			t.Error("Get(9.9.9) should fail")
		}
	})
}

func TestValidate(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	v := reg.Latest()

	t.Run("conforming report", func(t *testing.T) {
		doc := json.RawMessage(`{
			"form_info": {"polling_station": "4", "district": null},
			"ballot_statistics": {"ballots_used": 100, "good_ballots": 95, "bad_ballots": 2, "no_vote_ballots": 3},
			"vote_results": [{"number": 1, "name": "a", "vote_count": 95, "vote_count_text": null}]
		}`)
		if err := v.Validate(doc); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("nulls allowed for unreadable cells", func(t *testing.T) {
		doc := json.RawMessage(`{
			"form_info": {},
			"ballot_statistics": {"ballots_used": null, "good_ballots": null, "bad_ballots": null, "no_vote_ballots": null},
			"vote_results": []
		}`)
		if err := v.Validate(doc); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("missing statistics field rejected", func(t *testing.T) {
		doc := json.RawMessage(`{
			"form_info": {},
			"ballot_statistics": {"ballots_used": 10, "good_ballots": 10, "bad_ballots": 0},
			"vote_results": []
		}`)
		if err := v.Validate(doc); err == nil {
			t.Error("expected validation failure for missing no_vote_ballots")
		}
	})

	t.Run("negative counts rejected", func(t *testing.T) {
		doc := json.RawMessage(`{
			"form_info": {},
			"ballot_statistics": {"ballots_used": -1, "good_ballots": 0, "bad_ballots": 0, "no_vote_ballots": 0},
			"vote_results": []
		}`)
		if err := v.Validate(doc); err == nil {
			t.Error("expected validation failure for negative ballots_used")
		}
	})
}

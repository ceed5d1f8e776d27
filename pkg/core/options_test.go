package core

import "testing"

func TestOptions_TypedGetters(t *testing.T) {
	opts := NewOptions().
		Set("bucket.size", 48).
		Set("aa.contrast", float32(0.25)).
		Set("aa.jitter", "true").
		Set("aa.min", "-2").
		Set("filter", "mitchell").
		Set("caustics.gather", 64.0)

	if got := opts.GetInt("bucket.size", 32); got != 48 {
		t.Errorf("Expected bucket.size 48, got %d", got)
	}
	if got := opts.GetFloat("aa.contrast", 0.1); got != 0.25 {
		t.Errorf("Expected aa.contrast 0.25, got %f", got)
	}
	if got := opts.GetBool("aa.jitter", false); !got {
		t.Error("Expected aa.jitter to parse from string")
	}
	if got := opts.GetInt("aa.min", 0); got != -2 {
		t.Errorf("Expected aa.min -2, got %d", got)
	}
	if got := opts.GetString("filter", "box"); got != "mitchell" {
		t.Errorf("Expected filter mitchell, got %s", got)
	}
	if got := opts.GetInt("caustics.gather", 50); got != 64 {
		t.Errorf("Expected caustics.gather 64, got %d", got)
	}
}

func TestOptions_Defaults(t *testing.T) {
	opts := NewOptions().Set("aa.samples", "many")

	if got := opts.GetInt("aa.samples", 4); got != 4 {
		t.Errorf("Expected default for unparsable value, got %d", got)
	}
	if got := opts.GetFloat("missing", 1.5); got != 1.5 {
		t.Errorf("Expected default for missing key, got %f", got)
	}
	if got := opts.GetString("missing", "hilbert"); got != "hilbert" {
		t.Errorf("Expected default string, got %s", got)
	}
	if opts.Has("missing") {
		t.Error("Expected Has to be false for missing key")
	}
}

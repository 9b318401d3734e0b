// Copyright (c) Openident.
// Licensed under the MIT license.

package time

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnixRoundTrip(t *testing.T) {
	want := Unix{T: time.Unix(1700000000, 0).UTC()}

	b, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("TestUnixRoundTrip: Marshal: %v", err)
	}
	if string(b) != `"1700000000"` {
		t.Errorf("TestUnixRoundTrip: encoded form: got %s, want \"1700000000\"", b)
	}

	var got Unix
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("TestUnixRoundTrip: Unmarshal: %v", err)
	}
	if !got.T.Equal(want.T) {
		t.Errorf("TestUnixRoundTrip: got %v, want %v", got.T, want.T)
	}
}

func TestUnixEmptyString(t *testing.T) {
	var got Unix
	if err := json.Unmarshal([]byte(`""`), &got); err != nil {
		t.Fatalf("TestUnixEmptyString: %v", err)
	}
	if !got.T.IsZero() {
		t.Errorf("TestUnixEmptyString: got %v, want zero time", got.T)
	}
}

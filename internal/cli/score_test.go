package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/shadowsight/shadowsight/internal/integrity"
)

func TestScoreEventsText(t *testing.T) {
	in := strings.NewReader(`[{"type":"tab_switch"},{"type":"Paste"},{"type":"paste","details":"ignored"},{"type":"click"}]`)
	var out bytes.Buffer
	if err := scoreEvents(in, &out, false); err != nil {
		t.Fatalf("score: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Trust score: 82 (Mostly Trustworthy, severity medium)", "paste", "-10", "4 events, 1 unscored"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestScoreEventsJSON(t *testing.T) {
	var out bytes.Buffer
	if err := scoreEvents(strings.NewReader(`[]`), &out, true); err != nil {
		t.Fatalf("score: %v", err)
	}
	var b integrity.Breakdown
	if err := sonic.Unmarshal(out.Bytes(), &b); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b.Score != 100 || b.Band != integrity.BandTrustworthy {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
}

func TestScoreEventsRejectsBadInput(t *testing.T) {
	if err := scoreEvents(strings.NewReader(`{"type":"paste"}`), &bytes.Buffer{}, false); err == nil {
		t.Fatal("expected non-array input to fail")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "migrate": false, "rescore": false, "score": false}
	for _, c := range RootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("command %q not registered", name)
		}
	}
}

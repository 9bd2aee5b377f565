package server

import (
	"go/types"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHumanPayloadKeys(t *testing.T) {
	cases := []struct {
		hp   HumanPayload
		want string
	}{
		{HumanPayload{T: types.Float64, Float: 1.5}, `{"f64":1.5}`},
		{HumanPayload{T: types.Float64, Float: math.NaN()}, `{"f64":null}`},
		{HumanPayload{T: types.Bool, Bool: true}, `{"bool":true}`},
		{HumanPayload{T: types.Int, Int: 3}, `{"int":3}`},
		{HumanPayload{T: types.String, String: "C1"}, `{"str":"C1"}`},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		c.hp.EncodeAndRespond(w, httptest.NewRequest("GET", "/", nil))
		if got := strings.TrimSpace(w.Body.String()); got != c.want {
			t.Errorf("got %s, expected %s", got, c.want)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type %q", ct)
		}
	}
}

func TestHumanPayloadUnsupported(t *testing.T) {
	w := httptest.NewRecorder()
	hp := HumanPayload{T: types.Complex128}
	hp.EncodeAndRespond(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != 500 {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

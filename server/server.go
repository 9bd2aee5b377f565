// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"go/types"
	"log"
	"math"
	"net/http"
)

// FloatT is a struct with a single float64 field, for {"f64": value} bodies
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field, for {"int": value} bodies
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field, for {"str": value} bodies
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field, for {"bool": value} bodies
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload holds one scalar reply of a basic kind.  T selects which
// field is sent.
type HumanPayload struct {
	Bool   bool
	Float  float64
	Int    int
	String string
	T      types.BasicKind
}

// EncodeAndRespond writes the selected field of hp as JSON to w, keyed
// the same way the request bodies are ({"f64": ...} and so on).  A NaN or
// infinite float is sent as null.
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{hp.Bool}
	case types.Float64:
		if math.IsNaN(hp.Float) || math.IsInf(hp.Float, 0) {
			v = map[string]interface{}{"f64": nil}
		} else {
			v = FloatT{hp.Float}
		}
	case types.Int:
		v = IntT{hp.Int}
	case types.String:
		v = StrT{hp.String}
	default:
		http.Error(w, "unsupported payload kind", http.StatusInternalServerError)
		return
	}
	Reply(w, v)
}

// Reply encodes v as JSON with status 200.
func Reply(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		// the header is gone already, all we can do is note it
		log.Printf("error encoding reply to json %q", err)
	}
}

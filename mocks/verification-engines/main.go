// Command verification-engines runs stand-in OCR, face-match and liveness
// scorers on a single port for local development. Point all three
// VERIFICATION_*_URL variables at it and every clean capture approves.
//
// The module is deliberately dependency free so it runs with a bare
// `go run .` and never touches the service's module graph.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
)

type extraction struct {
	Name     string `json:"name"`
	ICNumber string `json:"ic_number"`
	DOB      string `json:"dob"`
	Address  string `json:"address"`
}

type scoreBody struct {
	Score float64 `json:"score"`
}

func main() {
	addr := flag.String("addr", ":7000", "listen address")
	face := flag.Float64("face-score", 0.82, "canned face match score")
	live := flag.Float64("liveness-score", 0.92, "canned liveness score")
	fail := flag.String("fail", "", `scorer path forced to 503, e.g. "/liveness"`)
	flag.Parse()

	canned := extraction{
		Name:     "JOHN DOE",
		ICNumber: "900101-14-1234",
		DOB:      "1990-01-01",
		Address:  "123, JALAN ABC, KUALA LUMPUR",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ocr", serveJSON(*fail, canned))
	mux.HandleFunc("POST /face-match", serveJSON(*fail, scoreBody{Score: *face}))
	mux.HandleFunc("POST /liveness", serveJSON(*fail, scoreBody{Score: *live}))

	log.Printf("verification engine stubs listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

// serveJSON answers every request with the same body. The real scorers
// fetch artifact bytes through the signed URLs in the request; the stubs
// never dereference them.
func serveJSON(failPath string, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if failPath != "" && r.URL.Path == failPath {
			http.Error(w, "scorer forced down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

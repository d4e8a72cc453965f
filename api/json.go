package api

import (
	"encoding/json"
	"io"
	"net/http"
)

func jsonEncode(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

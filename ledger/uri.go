package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
)

const (
	svgURIPrefix  = "data:image/svg+xml;base64,"
	jsonURIPrefix = "data:application/json;base64,"
)

// ImageURI encodes SVG markup as a base64 data URI.
func ImageURI(svg string) string {
	return svgURIPrefix + base64.StdEncoding.EncodeToString([]byte(svg))
}

type tokenMetadata struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// TokenURI builds the metadata URI announced when a template is created:
// a base64 JSON document carrying the name and image URI.
func TokenURI(name, imageURI string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding two strings cannot fail.
	_ = enc.Encode(tokenMetadata{Name: name, Image: imageURI})
	doc := bytes.TrimRight(buf.Bytes(), "\n")
	return jsonURIPrefix + base64.StdEncoding.EncodeToString(doc)
}

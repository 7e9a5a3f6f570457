package filetype

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const base64Delimiter = ";base64,"

// ToDataURI encodes data as a base64 data URI for the given MIME type.
func ToDataURI(mime string, data []byte) string {
	return "data:" + mime + base64Delimiter + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI extracts and decodes the base64 payload of a data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	payload, err := splitDataURI(uri)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return data, nil
}

// ValidateDataURI reports whether uri is structurally valid and carries a
// decodable base64 payload.
func ValidateDataURI(uri string) bool {
	payload, err := splitDataURI(uri)
	if err != nil {
		return false
	}
	_, err = base64.StdEncoding.DecodeString(payload)
	return err == nil
}

func splitDataURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", fmt.Errorf("data uri missing data: prefix")
	}
	mime, payload, ok := strings.Cut(rest, base64Delimiter)
	if !ok {
		return "", fmt.Errorf("data uri missing %q delimiter", base64Delimiter)
	}
	if mime == "" {
		return "", fmt.Errorf("data uri missing media type")
	}
	return payload, nil
}

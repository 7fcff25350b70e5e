package crawler

import (
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// TextDecoder turns a response body into text.
type TextDecoder func(body io.Reader, contentType string) (string, error)

// DecodeText reads body and decodes it to UTF-8.
// The encoding comes from the Content-Type charset, a BOM or a <meta>
// declaration, in that order, defaulting to windows-1252 for HTML without
// any hint. UTF-8 bodies are returned byte for byte.
func DecodeText(body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	enc, name, _ := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" {
		return string(data), nil
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s body: %w", name, err)
	}
	return string(decoded), nil
}

// Package charset resolves a schema's charset name (e.g. "UTF-8",
// "ISO-8859-1") to a golang.org/x/text/encoding.Encoding, the way
// internal/tmpl resolves every other static schema parameter once, at
// template-build time. Lookup failure is a fatal, build-time error.
package charset

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Default is used when a schema omits a charset parameter.
var Default = unicode.UTF8

// Lookup resolves name to an encoding.Encoding. An empty name resolves to
// Default.
func Lookup(name string) (encoding.Encoding, error) {
	if name == "" {
		return Default, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("charset: unknown charset %q: %w", name, err)
	}
	return enc, nil
}

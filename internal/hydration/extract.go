// Package hydration recovers the JSON blob a Next.js page embeds for
// client-side hydration.
package hydration

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"prop-crawler/internal/fault"
)

// ScriptID marks the script element holding the hydration data.
const ScriptID = "__NEXT_DATA__"

var (
	ErrHydrationNotFound = errors.New("hydration: __NEXT_DATA__ script not found")
	ErrHydrationParse    = errors.New("hydration: invalid JSON in __NEXT_DATA__")
)

// Extract decodes the hydration blob into generic JSON values.
func Extract(document string) (any, error) {
	var v any
	if err := ExtractInto(document, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ExtractInto decodes the hydration blob into v.
func ExtractInto(document string, v any) error {
	raw, err := Raw(document)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fault.Terminal("extract hydration", fmt.Errorf("%w: %v", ErrHydrationParse, err))
	}
	return nil
}

// Raw returns the text content of the hydration script.
func Raw(document string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(document))
	inTarget := false
	var text strings.Builder

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// EOF before the closing tag still counts as not found.
			return "", fault.Terminal("extract hydration", ErrHydrationNotFound)

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "script" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "id" && string(val) == ScriptID {
					inTarget = true
					break
				}
				if !more {
					break
				}
			}

		case html.TextToken:
			if inTarget {
				text.Write(z.Text())
			}

		case html.EndTagToken:
			if !inTarget {
				continue
			}
			if name, _ := z.TagName(); string(name) == "script" {
				return text.String(), nil
			}
		}
	}
}

package wechat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
)

// encodeXML renders params as the flat <xml> envelope the gateway expects.
// Keys are sorted for stable output.
func encodeXML(params map[string]string) []byte {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("<xml>")
	for _, k := range keys {
		fmt.Fprintf(&buf, "<%s><![CDATA[%s]]></%s>", k, params[k], k)
	}
	buf.WriteString("</xml>")
	return buf.Bytes()
}

// decodeXML parses a flat <xml> envelope into a string map. Nested elements
// are rejected.
func decodeXML(data []byte) (map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	params := make(map[string]string)

	var root string
	var current string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if root == "" {
				root = t.Name.Local
				continue
			}
			if current != "" {
				return nil, fmt.Errorf("unexpected nested element %q", t.Name.Local)
			}
			current = t.Name.Local
		case xml.CharData:
			if current != "" {
				params[current] += string(t)
			}
		case xml.EndElement:
			if t.Name.Local == current {
				current = ""
			}
		}
	}
	if root == "" {
		return nil, fmt.Errorf("empty xml payload")
	}
	return params, nil
}

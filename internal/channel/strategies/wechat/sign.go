package wechat

import (
	"crypto/md5"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
)

// sign computes the MD5 signature over the sorted non-empty params joined
// as k=v pairs with the API key appended, uppercased hex.
func sign(params map[string]string, apiKey string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	b.WriteString("key=")
	b.WriteString(apiKey)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}

// verifySign checks the payload's sign field in constant time.
func verifySign(params map[string]string, apiKey string) bool {
	got := params["sign"]
	if got == "" {
		return false
	}
	want := sign(params, apiKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

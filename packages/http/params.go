package http

import (
	"net/url"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitclient/packages/charset"
)

// Params holds request parameters. They become the query string for GET and
// HEAD and a form-encoded body for every other method.
type Params map[string]string

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode returns the UTF-8 parameters as "k1=v1&k2=v2" with keys sorted.
// Spaces are encoded as %20 in both names and values.
func (p Params) Encode() string {
	s, _ := p.encode(charset.UTF8)
	return s
}

// encode percent-encodes the bytes of each name and value in enc.
func (p Params) encode(enc charset.Encoding) (string, error) {
	if len(p) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, k := range p.Keys() {
		key, err := escape(enc, k)
		if err != nil {
			return "", err
		}
		value, err := escape(enc, p[k])
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String(), nil
}

func escape(enc charset.Encoding, s string) (string, error) {
	raw, err := enc.Encode(s)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(url.QueryEscape(string(raw)), "+", "%20"), nil
}

// ParseFormBody decodes an application/x-www-form-urlencoded body. Pairs
// without "=" are skipped and later keys win.
func ParseFormBody(body string) Params {
	result := make(Params)
	if body == "" {
		return result
	}
	for _, pair := range strings.Split(body, "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		result[key] = value
	}
	return result
}

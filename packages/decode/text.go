package decode

import (
	"github.com/abdul-hamid-achik/hitclient/packages/charset"
	"github.com/saintfish/chardet"
)

// Text decodes any body into a string. The charset parameter of the content
// type wins; without one the charset is detected from the content, falling
// back to UTF-8.
type Text struct{}

func (Text) Decode(body []byte, contentType string) (any, error) {
	enc := charset.UTF8
	if label := declaredCharset(contentType); label != "" {
		found, err := charset.Lookup(label)
		if err != nil {
			return nil, err
		}
		enc = found
	} else if detected := detectCharset(body); detected != "" {
		if found, err := charset.Lookup(detected); err == nil {
			enc = found
		}
	}

	return enc.Decode(body)
}

func declaredCharset(contentType string) string {
	_, params, err := mediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func detectCharset(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result.Confidence < 50 {
		return ""
	}
	return result.Charset
}

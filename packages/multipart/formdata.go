package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitclient/packages/charset"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	crlf = "\r\n"

	// maxBoundaryAttempts bounds boundary regeneration when a candidate
	// collides with appended content.
	maxBoundaryAttempts = 16
)

var (
	// ErrIO is returned when a file part cannot be read from disk.
	ErrIO = errors.New("multipart: cannot read file")
	// ErrFinalized is returned when appending to a body that was already finalized.
	ErrFinalized = errors.New("multipart: form data already finalized")
	// ErrBoundary is returned when no collision-free boundary could be chosen.
	ErrBoundary = errors.New("multipart: no unique boundary available")
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

type part struct {
	header map[string]string
	body   bytes.Buffer
}

// FormData accumulates the parts of a multipart/form-data body.
// It is not safe for concurrent use.
type FormData struct {
	encoding  charset.Encoding
	preamble  bytes.Buffer
	parts     []*part
	boundary  string
	finalized bool
	body      []byte

	newBoundary func() string
}

// New creates an empty FormData that encodes strings with enc.
func New(enc charset.Encoding) *FormData {
	return &FormData{
		encoding:    enc,
		newBoundary: randomBoundary,
	}
}

func randomBoundary() string {
	return "Boundary+" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// AppendPart appends a part with the given headers and body.
func (f *FormData) AppendPart(header map[string]string, body []byte) error {
	if f.finalized {
		return ErrFinalized
	}

	p := &part{header: make(map[string]string, len(header))}
	for k, v := range header {
		p.header[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	p.body.Write(body)
	f.parts = append(f.parts, p)
	return nil
}

// AppendFormField appends a form field named name.
func (f *FormData) AppendFormField(name string, data []byte) error {
	return f.AppendPart(map[string]string{
		"Content-Disposition": fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(name)),
	}, data)
}

// AppendFileField appends in-memory file content. The file name is generated
// from the field name and a random suffix.
func (f *FormData) AppendFileField(name string, data []byte, mimeType string) error {
	fileName := fmt.Sprintf("%s-%s", name, uuid.NewString())
	return f.appendFile(name, fileName, data, mimeType)
}

// AppendFile appends the contents of the file at path, named after its base
// name. An empty mimeType is detected from the content. Read failures wrap
// ErrIO and are reported here, not when the request runs.
func (f *FormData) AppendFile(name, path, mimeType string) error {
	return f.AppendFileWithName(name, path, filepath.Base(path), mimeType)
}

// AppendFileWithName is like AppendFile but uses fileName in the part header.
func (f *FormData) AppendFileWithName(name, path, fileName, mimeType string) error {
	if f.finalized {
		return ErrFinalized
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return f.appendFile(name, fileName, data, mimeType)
}

func (f *FormData) appendFile(name, fileName string, data []byte, mimeType string) error {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}

	return f.AppendPart(map[string]string{
		"Content-Disposition": fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(name), quoteEscaper.Replace(fileName)),
		"Content-Type": mimeType,
	}, data)
}

// AppendData appends raw bytes to the body of the most recent part without
// starting a new one. Before the first part, data goes to the preamble.
func (f *FormData) AppendData(data []byte) error {
	if f.finalized {
		return ErrFinalized
	}

	if len(f.parts) == 0 {
		f.preamble.Write(data)
		return nil
	}
	f.parts[len(f.parts)-1].body.Write(data)
	return nil
}

// AppendString encodes s with the form's string encoding and appends it like
// AppendData.
func (f *FormData) AppendString(s string) error {
	b, err := f.encoding.Encode(s)
	if err != nil {
		return err
	}
	return f.AppendData(b)
}

// Len returns the number of parts appended so far.
func (f *FormData) Len() int {
	return len(f.parts)
}

// Boundary returns the boundary chosen by Finalize, or "" before that.
func (f *FormData) Boundary() string {
	return f.boundary
}

// Finalize closes the body with the terminating boundary and returns the
// encoded bytes and the Content-Type header value. Calling it again returns
// the same result.
func (f *FormData) Finalize() ([]byte, string, error) {
	if f.finalized {
		return f.body, f.contentType(), nil
	}

	boundary, err := f.chooseBoundary()
	if err != nil {
		return nil, "", err
	}
	f.boundary = boundary

	var buf bytes.Buffer
	buf.Write(f.preamble.Bytes())
	for _, p := range f.parts {
		buf.WriteString("--" + boundary + crlf)
		for _, k := range headerOrder(p.header) {
			buf.WriteString(k + ": " + p.header[k] + crlf)
		}
		buf.WriteString(crlf)
		buf.Write(p.body.Bytes())
		buf.WriteString(crlf)
	}
	buf.WriteString("--" + boundary + "--" + crlf)

	f.body = buf.Bytes()
	f.finalized = true
	return f.body, f.contentType(), nil
}

func (f *FormData) contentType() string {
	return "multipart/form-data; boundary=" + f.boundary
}

func (f *FormData) chooseBoundary() (string, error) {
	for i := 0; i < maxBoundaryAttempts; i++ {
		candidate := f.newBoundary()
		if candidate != "" && !f.contains(candidate) {
			return candidate, nil
		}
	}
	return "", ErrBoundary
}

func (f *FormData) contains(boundary string) bool {
	b := []byte(boundary)
	if bytes.Contains(f.preamble.Bytes(), b) {
		return true
	}
	for _, p := range f.parts {
		if bytes.Contains(p.body.Bytes(), b) {
			return true
		}
		for k, v := range p.header {
			if strings.Contains(k, boundary) || strings.Contains(v, boundary) {
				return true
			}
		}
	}
	return false
}

// headerOrder lists Content-Disposition and Content-Type first, then the
// remaining headers sorted by name.
func headerOrder(header map[string]string) []string {
	keys := make([]string, 0, len(header))
	var rest []string
	for _, k := range []string{"Content-Disposition", "Content-Type"} {
		if _, ok := header[k]; ok {
			keys = append(keys, k)
		}
	}
	for k := range header {
		if k != "Content-Disposition" && k != "Content-Type" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

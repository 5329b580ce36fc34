package apiclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are inspected to pick a part's
// Content-Type.
const sniffLen = 3072

// FilePart is one file field of a multipart upload.
type FilePart struct {
	Field    string
	FileName string
	Content  io.Reader
}

// Multipart is a multipart/form-data body: plain fields then files.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (m Multipart) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range m.Files {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(f.Content, head)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, "", fmt.Errorf("read %s: %w", f.FileName, err)
		}
		head = head[:n]

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.FileName)))
		h.Set("Content-Type", DetectContentType(head))

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, io.MultiReader(bytes.NewReader(head), f.Content)); err != nil {
			return nil, "", fmt.Errorf("copy %s: %w", f.FileName, err)
		}
	}

	for k, v := range m.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// DetectContentType sniffs a MIME type from the leading bytes of a file.
func DetectContentType(head []byte) string {
	return mimetype.Detect(head).String()
}

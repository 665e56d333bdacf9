package testutil

import (
	"bytes"
	"mime/multipart"
	"testing"
)

// Part is one file in a multipart upload body.
type Part struct {
	Field    string
	Filename string
	Data     []byte
}

// MultipartBody builds a multipart/form-data body and returns it along with
// its Content-Type header value.
func MultipartBody(t testing.TB, parts ...Part) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for _, p := range parts {
		field := p.Field
		if field == "" {
			field = "files"
		}
		fw, err := w.CreateFormFile(field, p.Filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(p.Data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

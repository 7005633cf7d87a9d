// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
)

// FormFile describes one file attached to a [FormPart].
type FormFile struct {
	// Path locates the file on disk.
	Path string

	// Name is the file name to present; defaults to the base of Path.
	Name string

	// ContentType is the part content type; defaults to
	// "application/octet-stream".
	ContentType string
}

// FormPart is one part of a multipart [Form]: either a plain field with a
// content, or a set of file attachments.
type FormPart struct {
	// Name is the field name.
	Name string

	// Content is the field value; ignored when Files is not empty.
	Content string

	// Files are the file attachments for this part.
	Files []FormFile
}

// Form builds a multipart/form-data request body for [HTTPConn.SetForm].
//
// Construct using [NewForm], add parts with [Form.AddPart], and either
// install the form with [HTTPConn.SetForm] or render it with [Form.Build].
type Form struct {
	// parts are the accumulated form parts.
	parts []FormPart
}

// NewForm returns a new empty [*Form].
func NewForm() *Form {
	return &Form{}
}

// AddPart appends a part to the form.
func (f *Form) AddPart(part FormPart) {
	f.parts = append(f.parts, part)
}

// Build renders the form, reading every attached file from disk, and
// returns the Content-Type header value (with boundary) and the body.
func (f *Form) Build() (contentType string, body []byte, err error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	for _, part := range f.parts {
		if len(part.Files) == 0 {
			if err := writer.WriteField(part.Name, part.Content); err != nil {
				return "", nil, fmt.Errorf("muxio: write form field %q: %w", part.Name, err)
			}
			continue
		}
		for _, file := range part.Files {
			if err := writeFormFile(writer, part.Name, file); err != nil {
				return "", nil, err
			}
		}
	}
	if err := writer.Close(); err != nil {
		return "", nil, fmt.Errorf("muxio: finalize form: %w", err)
	}
	return writer.FormDataContentType(), buffer.Bytes(), nil
}

// writeFormFile appends one file attachment to the multipart writer.
func writeFormFile(writer *multipart.Writer, fieldName string, file FormFile) error {
	name := file.Name
	if name == "" {
		name = filepath.Base(file.Path)
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(
		`form-data; name=%q; filename=%q`, fieldName, name))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("muxio: create form part %q: %w", fieldName, err)
	}
	source, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("muxio: open form file: %w", err)
	}
	defer source.Close()
	if _, err := io.Copy(part, source); err != nil {
		return fmt.Errorf("muxio: read form file %q: %w", file.Path, err)
	}
	return nil
}

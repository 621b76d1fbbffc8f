// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package content

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxAttachmentSize is the largest file accepted as an attachment.
const MaxAttachmentSize = 20 * 1024 * 1024

const (
	mimePDF         = "application/pdf"
	mimeOctetStream = "application/octet-stream"
)

// ErrAttachmentTooLarge is returned for files above MaxAttachmentSize.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// ErrTooManyAttachments is returned when the pending list is full.
var ErrTooManyAttachments = errors.New("too many pending attachments")

// Attachment is a user-supplied file carried with exactly one outgoing
// message. Data is standard base64 without a data: prefix.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// IsImage reports whether the attachment has an image/* type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// IsPDF reports whether the attachment is a PDF document.
func (a Attachment) IsPDF() bool {
	return a.MimeType == mimePDF
}

// DataURI renders the attachment as a data: URI.
func (a Attachment) DataURI() string {
	return "data:" + a.MimeType + ";base64," + a.Data
}

// Size returns the decoded size in bytes.
func (a Attachment) Size() int {
	n := base64.StdEncoding.DecodedLen(len(a.Data))
	if len(a.Data) >= 2 {
		n -= strings.Count(a.Data[len(a.Data)-2:], "=")
	}
	return n
}

// FromBytes builds an attachment from raw bytes. When declaredType is empty
// or generic the type is sniffed from the content.
func FromBytes(name string, data []byte, declaredType string) (Attachment, error) {
	if len(data) > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrAttachmentTooLarge, name, len(data), MaxAttachmentSize)
	}

	mimeType := baseType(declaredType)
	if mimeType == "" || mimeType == mimeOctetStream {
		mimeType = baseType(mimetype.Detect(data).String())
	}

	return Attachment{
		Name:     name,
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// FromReader reads r fully (up to MaxAttachmentSize) and builds an attachment.
func FromReader(name string, r io.Reader, declaredType string) (Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxAttachmentSize+1))
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return FromBytes(name, data, declaredType)
}

// ReadFile loads a file from disk as an attachment. Read errors are returned,
// never swallowed.
func ReadFile(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Attachment{}, fmt.Errorf("file not found: %s", path)
		}
		return Attachment{}, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrAttachmentTooLarge, path, info.Size(), MaxAttachmentSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read file: %w", err)
	}
	return FromBytes(filepath.Base(path), data, "")
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

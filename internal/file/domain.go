// Package file implements ownership-scoped attachment storage. Attachment
// bytes live base64-encoded inside the record row; there is no blob store.
package file

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
)

// Size ceilings are enforced against the raw byte count; the encoded column
// ceiling follows from base64's 4/3 inflation.
const (
	MaxProjectFileBytes     = 50 << 20
	MaxConsultancyFileBytes = 10 << 20

	// MaxConsultancyAttachments caps files per consultancy submission.
	MaxConsultancyAttachments = 5
)

// ParentKind identifies which resource type owns an attachment.
type ParentKind string

// Attachment parents.
const (
	ParentProject     ParentKind = "project"
	ParentConsultancy ParentKind = "consultancy"
)

// ParentRef points at exactly one owning resource. Exactly one of the two
// fields is set; Validate enforces the invariant before any persistence.
type ParentRef struct {
	ProjectID     *uuid.UUID
	ConsultancyID *uuid.UUID
}

// Kind returns the parent resource type.
func (p ParentRef) Kind() ParentKind {
	if p.ProjectID != nil {
		return ParentProject
	}
	return ParentConsultancy
}

// Validate rejects refs with zero or two parents set.
func (p ParentRef) Validate() error {
	if (p.ProjectID == nil) == (p.ConsultancyID == nil) {
		return fmt.Errorf("exactly one parent reference required: %w", httpx.ErrValidation)
	}
	return nil
}

// Record is the attachment metadata row.
type Record struct {
	ID           uuid.UUID
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Description  string
	UploaderID   int64
	Parent       ParentRef
	CreatedAt    time.Time
}

// Content pairs decoded bytes with their metadata for download.
type Content struct {
	Record Record
	Bytes  []byte
}

// Upload carries the inbound attachment payload.
type Upload struct {
	OriginalName string
	MimeType     string
	Description  string
	Bytes        []byte
}

var (
	// ErrFileNotFound is returned when the attachment row is absent.
	ErrFileNotFound = fmt.Errorf("file: %w", httpx.ErrNotFound)
	// ErrUnsupportedType rejects MIME types outside the allow-list.
	ErrUnsupportedType = fmt.Errorf("file type not allowed: %w", httpx.ErrUnsupportedMedia)
	// ErrTooLarge rejects uploads above the parent-kind ceiling.
	ErrTooLarge = fmt.Errorf("file exceeds size limit: %w", httpx.ErrPayloadTooLarge)
	// ErrEmptyUpload rejects zero-byte uploads.
	ErrEmptyUpload = fmt.Errorf("empty file: %w", httpx.ErrValidation)
)

var projectMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint": {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"image/jpeg":                   {},
	"image/png":                    {},
	"image/gif":                    {},
	"image/webp":                   {},
	"text/plain":                   {},
	"text/csv":                     {},
	"application/zip":              {},
	"application/x-rar-compressed": {},
	"application/json":             {},
}

var consultancyMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

// AllowedMimeType reports whether the type is accepted for the parent kind.
func AllowedMimeType(kind ParentKind, mimeType string) bool {
	switch kind {
	case ParentProject:
		_, ok := projectMimeTypes[mimeType]
		return ok
	case ParentConsultancy:
		_, ok := consultancyMimeTypes[mimeType]
		return ok
	}
	return false
}

// SizeCeiling returns the raw-byte ceiling for the parent kind.
func SizeCeiling(kind ParentKind) int64 {
	if kind == ParentConsultancy {
		return MaxConsultancyFileBytes
	}
	return MaxProjectFileBytes
}

// Package domain kind.go describes the content kinds a secret can carry and the
// file extensions accepted for each binary kind.
package domain

import (
	"path/filepath"
	"strings"
)

// ContentKind is the immutable type of a secret's payload.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
	KindFile  ContentKind = "file"
)

// ParseKind converts a client supplied kind. Unknown values yield ErrInvalidRequest.
func ParseKind(s string) (ContentKind, error) {
	switch k := ContentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindText, KindImage, KindVideo, KindFile:
		return k, nil
	}
	return "", ErrInvalidRequest
}

// IsBinary reports whether the kind stores its payload in blob storage.
func (k ContentKind) IsBinary() bool {
	return k == KindImage || k == KindVideo || k == KindFile
}

// String returns the wire form of the kind.
func (k ContentKind) String() string { return string(k) }

type extInfo struct {
	kind ContentKind
	mime string
}

var extensions = map[string]extInfo{
	".jpg":  {KindImage, "image/jpeg"},
	".jpeg": {KindImage, "image/jpeg"},
	".png":  {KindImage, "image/png"},
	".gif":  {KindImage, "image/gif"},
	".webp": {KindImage, "image/webp"},
	".mp4":  {KindVideo, "video/mp4"},
	".webm": {KindVideo, "video/webm"},
	".mov":  {KindVideo, "video/quicktime"},
	".pdf":  {KindFile, "application/pdf"},
	".zip":  {KindFile, "application/zip"},
	".docx": {KindFile, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".doc":  {KindFile, "application/msword"},
	".txt":  {KindFile, "text/plain"},
	".xlsx": {KindFile, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	".pptx": {KindFile, "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
}

// Extension returns the lower-cased extension of name, including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// KindForFile returns the kind implied by the file's extension. The second
// value is false for extensions outside the allowlist.
func KindForFile(name string) (ContentKind, bool) {
	info, ok := extensions[Extension(name)]
	return info.kind, ok
}

// MimeForFile returns the MIME type associated with the file's extension,
// defaulting to application/octet-stream.
func MimeForFile(name string) string {
	if info, ok := extensions[Extension(name)]; ok {
		return info.mime
	}
	return "application/octet-stream"
}

// AllowedExtension reports whether ext (with leading dot) is on the allowlist.
func AllowedExtension(ext string) bool {
	_, ok := extensions[strings.ToLower(ext)]
	return ok
}

// MatchesFamily reports whether a sniffed MIME type belongs to the kind's
// family. Only image and video are checked; generic files accept anything.
func (k ContentKind) MatchesFamily(mime string) bool {
	switch k {
	case KindImage:
		return strings.HasPrefix(mime, "image/")
	case KindVideo:
		return strings.HasPrefix(mime, "video/")
	}
	return true
}

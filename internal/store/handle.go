package store

import (
	"strings"

	"github.com/google/uuid"

	"github.com/haukened/onetimeview/internal/domain"
)

// fallbackExt is used for file names whose extension is not on the allowlist.
const fallbackExt = ".bin"

// NewBlobHandle returns a random blob handle carrying the sanitized extension
// of fileName. The client supplied name never reaches a storage path.
func NewBlobHandle(fileName string) string {
	ext := domain.Extension(fileName)
	if !domain.AllowedExtension(ext) {
		ext = fallbackExt
	}
	return uuid.NewString() + ext
}

// ValidHandle reports whether h has the shape produced by NewBlobHandle, which
// rules out path separators and traversal.
func ValidHandle(h string) bool {
	base, ext, ok := strings.Cut(h, ".")
	if !ok || strings.Contains(ext, ".") {
		return false
	}
	if ext = "." + ext; ext != fallbackExt && !domain.AllowedExtension(ext) {
		return false
	}
	if len(base) != 36 {
		return false
	}
	_, err := uuid.Parse(base)
	return err == nil
}

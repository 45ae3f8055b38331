// Package domain byterange.go parses single HTTP byte ranges for partial video
// delivery.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is an inclusive byte span within a blob of Total bytes.
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// Length returns the number of bytes covered.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange renders the Content-Range header value.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// ParseRange parses a Range header of the forms "bytes=a-b", "bytes=a-" and
// "bytes=-n" against a blob of size bytes. The end is clamped to size-1.
// Malformed headers and multi-range requests return ErrInvalidRequest; ranges
// starting beyond the blob return ErrRangeNotSatisfied.
func ParseRange(header string, size int64) (ByteRange, error) {
	const prefix = "bytes="
	h := strings.TrimSpace(header)
	if !strings.HasPrefix(h, prefix) {
		return ByteRange{}, ErrInvalidRequest
	}
	set := strings.TrimSpace(h[len(prefix):])
	if strings.Contains(set, ",") {
		return ByteRange{}, ErrInvalidRequest
	}
	startStr, endStr, ok := strings.Cut(set, "-")
	if !ok {
		return ByteRange{}, ErrInvalidRequest
	}
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)
	if size <= 0 {
		return ByteRange{}, ErrRangeNotSatisfied
	}
	last := size - 1

	if startStr == "" { // suffix range: last n bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, ErrInvalidRequest
		}
		if n > size {
			n = size
		}
		return ByteRange{Start: size - n, End: last, Total: size}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, ErrInvalidRequest
	}
	end := last
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return ByteRange{}, ErrInvalidRequest
		}
	}
	if start > last {
		return ByteRange{}, ErrRangeNotSatisfied
	}
	if end > last {
		end = last
	}
	return ByteRange{Start: start, End: end, Total: size}, nil
}

package dispatch

import "smsrelay/internal/constants"

// SplitSegments breaks a message body into transport-sized segments. A body
// that fits a single transmission unit goes out as one segment; longer bodies
// use the shorter multipart segment length to leave room for the
// concatenation header.
func SplitSegments(message string) []string {
	runes := []rune(message)
	if len(runes) <= constants.SingleSegmentLength {
		return []string{message}
	}

	var segments []string
	for start := 0; start < len(runes); start += constants.MultipartSegmentLength {
		end := start + constants.MultipartSegmentLength
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, string(runes[start:end]))
	}
	return segments
}

package status

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FileFormatter defines how file outcomes and progress are worded
type FileFormatter interface {
	// FormatFileOperation formats the outcome of one file
	FormatFileOperation(info FileInfo) string

	// FormatProgress formats byte progress
	FormatProgress(current, total int64) string

	// FormatError formats an error message
	FormatError(err error) string
}

// DefaultFileFormatter provides a default implementation of FileFormatter
type DefaultFileFormatter struct{}

// NewDefaultFileFormatter creates a new DefaultFileFormatter
func NewDefaultFileFormatter() *DefaultFileFormatter {
	return &DefaultFileFormatter{}
}

// FormatFileOperation formats a file outcome with emojis
func (f *DefaultFileFormatter) FormatFileOperation(info FileInfo) string {
	switch info.Status {
	case StatusCopied:
		return fmt.Sprintf("✨ Copied %s -> %s (%s)", info.Source, info.Destination, humanize.IBytes(uint64(info.Size)))
	case StatusExists:
		return fmt.Sprintf("👍 Exists %s -> %s", info.Source, info.Destination)
	case StatusConflict:
		return fmt.Sprintf("⚠️  Conflict %s -> %s (different size)", info.Source, info.Destination)
	case StatusPlanned:
		return fmt.Sprintf("📋 Would copy %s -> %s", info.Source, info.Destination)
	case StatusFailed:
		return fmt.Sprintf("❌ Failed %s", info.Source)
	default:
		return fmt.Sprintf("❔ Unknown %s", info.Source)
	}
}

// FormatProgress formats byte progress with a percentage
func (f *DefaultFileFormatter) FormatProgress(current, total int64) string {
	var percentage float64
	if total <= 0 {
		if current > 0 {
			percentage = 100
		}
	} else {
		percentage = float64(current) / float64(total) * 100
	}

	done, all := humanize.IBytes(uint64(max(current, 0))), humanize.IBytes(uint64(max(total, 0)))
	if current >= total {
		return fmt.Sprintf("✅ Progress: %s/%s (%.0f%%)", done, all, percentage)
	}
	return fmt.Sprintf("⏳ Progress: %s/%s (%.0f%%)", done, all, percentage)
}

// FormatError formats an error message with emoji
func (f *DefaultFileFormatter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("❌ Error: %v", err)
}

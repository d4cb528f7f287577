// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// 🎨 Display configuration
const (
	fileIndent  = 4  // spaces to indent file entries
	nameWidth   = 35 // base width for the source path
	statusWidth = 10 // width for status text
	sizeWidth   = 10 // width for humanized size
)

// 🎯 FormatFileLine formats one outcome as a colored, column aligned line
func FormatFileLine(info FileInfo) string {
	var prefix string
	switch info.Status {
	case StatusCopied:
		prefix = color.GreenString("✓")
	case StatusPlanned:
		prefix = color.CyanString("→")
	case StatusConflict:
		prefix = color.YellowString("≠")
	case StatusFailed:
		prefix = color.RedString("✗")
	default:
		prefix = color.HiBlackString("-")
	}

	namePart := fmt.Sprintf("%-*s", nameWidth, info.Source)
	statusPart := fmt.Sprintf("%-*s", statusWidth, info.Status.String())
	sizePart := fmt.Sprintf("%*s", sizeWidth, humanize.IBytes(uint64(max(info.Size, 0))))

	line := fmt.Sprintf("%s%s %s %s %s",
		strings.Repeat(" ", fileIndent),
		prefix,
		namePart,
		statusPart,
		sizePart,
	)
	if info.Destination != "" {
		line += " " + color.HiBlackString("->") + " " + info.Destination
	}
	if info.Error != nil {
		line += " " + color.RedString(info.Error.Error())
	}
	return line
}

// FormatBlockHeader formats the heading printed before a block's files
func FormatBlockHeader(block string, files int) string {
	return fmt.Sprintf("%s %s", color.New(color.Bold).Sprint(block), color.HiBlackString("(%d files)", files))
}

// FormatSummary formats a one line run summary
func FormatSummary(s Summary) string {
	parts := []string{
		color.GreenString("%d copied", s.Copied),
		fmt.Sprintf("%d exists", s.Exists),
	}
	if s.Planned > 0 {
		parts = append(parts, color.CyanString("%d planned", s.Planned))
	}
	if s.Conflict > 0 {
		parts = append(parts, color.YellowString("%d conflict", s.Conflict))
	}
	if s.Failed > 0 {
		parts = append(parts, color.RedString("%d failed", s.Failed))
	}
	return strings.Join(parts, ", ") + " " + color.HiBlackString("(%s)", humanize.IBytes(uint64(max(s.Bytes, 0))))
}

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

package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math/big"
	"regexp"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

// ErrNoExif is returned when a file carries no EXIF payload
var ErrNoExif = errors.Base("no exif data")

// ExifDateLayout is the layout of EXIF timestamp tags
const ExifDateLayout = "2006:01:02 15:04:05"

var (
	exifHeader = []byte("Exif\x00\x00")
	offsetRe   = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})`)
)

// offset tags live in the Exif sub-IFD and are not named by goexif
var offsetTags = map[uint16]string{
	0x9010: "OffsetTime",
	0x9011: "OffsetTimeOriginal",
	0x9012: "OffsetTimeDigitized",
}

const (
	jpegSOI  = 0xd8
	jpegEOI  = 0xd9
	jpegSOS  = 0xda
	jpegAPP1 = 0xe1
)

// 📦 locateExif returns the raw TIFF structure embedded in r.
//
// JPEG files are scanned marker by marker for an APP1 Exif segment, TIFF
// files are returned whole, and RIFF/WEBP files are walked chunk by chunk
// for an EXIF chunk.
func locateExif(r io.ReadSeeker) ([]byte, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, errors.Errorf("reading header: %w", err)
	}
	head = head[:n]

	switch {
	case len(head) >= 2 && head[0] == 0xff && head[1] == jpegSOI:
		return jpegExif(r)
	case bytes.HasPrefix(head, []byte("II*\x00")), bytes.HasPrefix(head, []byte("MM\x00*")):
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, errors.Errorf("rewinding: %w", err)
		}
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Errorf("reading tiff body: %w", err)
		}
		return body, nil
	case len(head) == 12 && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WEBP":
		return riffExif(r)
	default:
		return nil, errors.Errorf("%w: unsupported container", ErrNoExif)
	}
}

func jpegExif(r io.ReadSeeker) ([]byte, error) {
	if _, err := r.Seek(2, io.SeekStart); err != nil {
		return nil, errors.Errorf("seeking past SOI: %w", err)
	}

	marker := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, marker); err != nil {
			return nil, errors.Errorf("%w: no APP1 segment", ErrNoExif)
		}
		if marker[0] != 0xff || marker[1] == jpegSOS || marker[1] == jpegEOI {
			return nil, errors.Errorf("%w: no APP1 segment", ErrNoExif)
		}

		length := int64(binary.BigEndian.Uint16(marker[2:4])) - 2
		if length < 0 {
			return nil, errors.Errorf("invalid jpeg segment length %d", length+2)
		}

		if marker[1] != jpegAPP1 {
			if _, err := r.Seek(length, io.SeekCurrent); err != nil {
				return nil, errors.Errorf("skipping jpeg segment: %w", err)
			}
			continue
		}

		seg := make([]byte, length)
		if _, err := io.ReadFull(r, seg); err != nil {
			return nil, errors.Errorf("reading APP1 segment: %w", err)
		}
		if bytes.HasPrefix(seg, exifHeader) {
			return seg[len(exifHeader):], nil
		}
	}
}

func riffExif(r io.ReadSeeker) ([]byte, error) {
	if _, err := r.Seek(12, io.SeekStart); err != nil {
		return nil, errors.Errorf("seeking past RIFF header: %w", err)
	}

	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, errors.Errorf("%w: no EXIF chunk", ErrNoExif)
		}
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		if string(chunk[0:4]) == "EXIF" {
			left, err := remaining(r)
			if err != nil {
				return nil, err
			}
			if size > left {
				return nil, errors.Errorf("%w: EXIF chunk declares %d bytes, %d remain", ErrNoExif, size, left)
			}
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, errors.Errorf("reading EXIF chunk: %w", err)
			}
			return bytes.TrimPrefix(data, exifHeader), nil
		}

		// chunks are padded to an even size
		if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
			return nil, errors.Errorf("skipping %q chunk: %w", chunk[0:4], err)
		}
	}
}

// remaining reports how many bytes are left after the current offset of r
func remaining(r io.ReadSeeker) (int64, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Errorf("reading offset: %w", err)
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Errorf("seeking to end: %w", err)
	}
	if _, err := r.Seek(cur, io.SeekStart); err != nil {
		return 0, errors.Errorf("restoring offset: %w", err)
	}
	return end - cur, nil
}

// 📸 decodeExif decodes every EXIF tag in r into an object value
func decodeExif(ctx context.Context, r io.ReadSeeker) (cty.Value, error) {
	payload, err := locateExif(r)
	if err != nil {
		return cty.NilVal, err
	}

	x, err := exif.Decode(bytes.NewReader(payload))
	if err != nil {
		if x == nil || exif.IsCriticalError(err) {
			return cty.NilVal, errors.Errorf("decoding exif: %w", err)
		}
		zerolog.Ctx(ctx).Debug().Err(err).Msg("partial exif decode")
	}

	tags := tagWalker{}
	if err := x.Walk(tags); err != nil {
		return cty.NilVal, errors.Errorf("walking exif tags: %w", err)
	}
	for name, v := range offsetValues(x) {
		if _, ok := tags[name]; !ok {
			tags[name] = v
		}
	}

	if dt, ok := tags[string(exif.DateTime)]; ok && dt.Type() == cty.String {
		fixed, err := correctDateTime(dt.AsString(), tags["OffsetTime"])
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("value", dt.AsString()).Msg("unparseable exif DateTime")
		} else {
			tags[string(exif.DateTime)] = cty.StringVal(fixed.Format(time.RFC3339))
		}
	}

	return cty.ObjectVal(tags), nil
}

// correctDateTime parses an EXIF timestamp as UTC and, when offset holds a
// `+HH:MM` value, moves it into that fixed zone
func correctDateTime(raw string, offset cty.Value) (time.Time, error) {
	t, err := time.ParseInLocation(ExifDateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.Errorf("parsing %q: %w", raw, err)
	}

	if offset.Type() != cty.String || offset.IsNull() {
		return t, nil
	}
	m := offsetRe.FindStringSubmatch(offset.AsString())
	if m == nil {
		return t, nil
	}
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	secs := hours*3600 + minutes*60
	if m[1] == "-" {
		secs = -secs
	}
	return t.In(time.FixedZone(offset.AsString()[:6], secs)), nil
}

// offsetValues reads the OffsetTime tags straight out of the Exif sub-IFD
func offsetValues(x *exif.Exif) map[string]cty.Value {
	out := map[string]cty.Value{}

	ptr, err := x.Get(exif.ExifIFDPointer)
	if err != nil {
		return out
	}
	off, err := ptr.Int64(0)
	if err != nil {
		return out
	}

	r := bytes.NewReader(x.Raw)
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return out
	}
	dir, _, err := tiff.DecodeDir(r, x.Tiff.Order)
	if err != nil {
		return out
	}

	for _, tag := range dir.Tags {
		name, ok := offsetTags[tag.Id]
		if !ok {
			continue
		}
		if v, ok := tagValue(tag); ok {
			out[name] = v
		}
	}
	return out
}

type tagWalker map[string]cty.Value

func (w tagWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if v, ok := tagValue(tag); ok {
		w[string(name)] = v
	}
	return nil
}

// tagValue converts a tag to a cty value. Multi-valued numeric tags become
// lists; tags that hold no usable text or number are skipped.
func tagValue(tag *tiff.Tag) (cty.Value, bool) {
	count := int(tag.Count)
	if count == 0 {
		return cty.NilVal, false
	}

	var nums []cty.Value
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return cty.NilVal, false
		}
		return cty.StringVal(s), true

	case tiff.UndefVal:
		b := bytes.TrimRight(tag.Val, "\x00")
		if len(b) == 0 || !printable(b) {
			return cty.NilVal, false
		}
		return cty.StringVal(string(b)), true

	case tiff.IntVal:
		for i := 0; i < count; i++ {
			n, err := tag.Int64(i)
			if err != nil {
				return cty.NilVal, false
			}
			nums = append(nums, cty.NumberIntVal(n))
		}

	case tiff.RatVal:
		for i := 0; i < count; i++ {
			num, den, err := tag.Rat2(i)
			if err != nil || den == 0 {
				return cty.NilVal, false
			}
			nums = append(nums, cty.NumberVal(new(big.Float).SetRat(big.NewRat(num, den))))
		}

	case tiff.FloatVal:
		for i := 0; i < count; i++ {
			f, err := tag.Float(i)
			if err != nil {
				return cty.NilVal, false
			}
			nums = append(nums, cty.NumberFloatVal(f))
		}

	default:
		return cty.NilVal, false
	}

	if len(nums) == 1 {
		return nums[0], true
	}
	return cty.ListVal(nums), true
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

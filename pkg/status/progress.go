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
	"io"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
)

// ⏳ Progress displays byte progress. Calls are serialised by Manager.
type Progress interface {
	Start(total int64)
	SetTotal(total int64)
	Add(n int64)
	Stop()
}

// NopProgress discards progress updates
type NopProgress struct{}

func (NopProgress) Start(int64)    {}
func (NopProgress) SetTotal(int64) {}
func (NopProgress) Add(int64)      {}
func (NopProgress) Stop()          {}

// 📶 BarProgress renders a pterm progress bar sized in bytes
type BarProgress struct {
	title  string
	writer io.Writer
	bar    *pterm.ProgressbarPrinter
}

// NewBarProgress returns a bar that writes to w
func NewBarProgress(title string, w io.Writer) *BarProgress {
	return &BarProgress{title: title, writer: w}
}

func (p *BarProgress) Start(total int64) {
	if total <= 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(int(total)).
		WithWriter(p.writer).
		WithShowCount(false).
		WithRemoveWhenDone(true).
		Start(p.label(0, total))
	if err != nil {
		return
	}
	p.bar = bar
}

func (p *BarProgress) SetTotal(total int64) {
	if p.bar == nil {
		return
	}
	if total <= int64(p.bar.Current) {
		p.Stop()
		return
	}
	p.bar.Total = int(total)
	p.bar.UpdateTitle(p.label(int64(p.bar.Current), total))
}

func (p *BarProgress) Add(n int64) {
	if p.bar == nil || n <= 0 {
		return
	}
	p.bar.UpdateTitle(p.label(int64(p.bar.Current)+n, int64(p.bar.Total)))
	p.bar.Add(int(n))
	if !p.bar.IsActive {
		p.bar = nil
	}
}

func (p *BarProgress) Stop() {
	if p.bar == nil {
		return
	}
	_, _ = p.bar.Stop()
	p.bar = nil
}

func (p *BarProgress) label(current, total int64) string {
	return p.title + " " + humanize.IBytes(uint64(current)) + "/" + humanize.IBytes(uint64(total))
}

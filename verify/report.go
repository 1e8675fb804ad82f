package verify

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/tilepipe/layer"
)

// maxListedMismatches bounds the per-element detail kept in a report.
const maxListedMismatches = 16

// A Mismatch is one output element where the tiled run and the reference
// disagree.
type Mismatch struct {
	Index             int
	Row, Col, Channel int
	Got, Want         byte
}

// A Report is the outcome of comparing a tiled output against the reference.
type Report struct {
	Total      int
	Mismatched int
	First      []Mismatch
}

// OK reports whether the outputs matched exactly.
func (r *Report) OK() bool {
	return r.Mismatched == 0
}

// Compare checks two output tensors element by element.
func Compare(p layer.Params, got, want []byte) *Report {
	r := &Report{Total: len(want)}
	outW := p.OutW()

	for i := range want {
		if i < len(got) && got[i] == want[i] {
			continue
		}
		r.Mismatched++
		if len(r.First) < maxListedMismatches {
			pos := i / p.OutChannels
			m := Mismatch{
				Index:   i,
				Row:     pos / outW,
				Col:     pos % outW,
				Channel: i % p.OutChannels,
				Want:    want[i],
			}
			if i < len(got) {
				m.Got = got[i]
			}
			r.First = append(r.First, m)
		}
	}

	return r
}

// WriteReport writes a formatted report to a writer.
func (r *Report) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "TILED LAYER VERIFICATION REPORT")
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "Elements compared: %d\n", r.Total)
	fmt.Fprintf(w, "Mismatched:        %d\n", r.Mismatched)

	if r.OK() {
		fmt.Fprintln(w, "Result: PASS")
		return
	}

	fmt.Fprintln(w, "Result: FAIL")
	fmt.Fprintln(w)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("First mismatches")
	t.AppendHeader(table.Row{"Index", "Row", "Col", "Channel", "Got", "Want"})
	for _, m := range r.First {
		t.AppendRow(table.Row{m.Index, m.Row, m.Col, m.Channel, m.Got, m.Want})
	}
	t.Render()
}

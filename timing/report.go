package timing

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteEstimate renders an estimate as a table.
func (e Estimate) WriteEstimate(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Layer timing estimate")
	t.AppendRows([]table.Row{
		{"Total cycles", humanize.Comma(int64(e.TotalCycles))},
		{"Compute stall cycles", humanize.Comma(int64(e.ComputeStallCycles))},
		{"Transfer idle cycles", humanize.Comma(int64(e.TransferIdleCycles))},
		{"Bytes moved", humanize.IBytes(uint64(e.TransferBytes))},
		{"MACs", humanize.Comma(int64(e.MACs))},
		{"Simulated time (s)", float64(e.Time)},
	})
	t.Render()
}

package annotate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Placeholder is emitted for addresses with no debug-info match.
const Placeholder = "--:--"

// addrColumn is the zero-based trace column holding the instruction address.
const addrColumn = 2

// Annotate reads a whitespace-delimited trace, inserts the source location
// as a new column after the address, and writes fixed-width rows. The header
// line passes through untouched, as do trailing columns of every row. Rows
// whose address is unknown get the placeholder and the run continues.
func Annotate(trace io.Reader, w io.Writer, table DebugTable) error {
	scanner := bufio.NewScanner(trace)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var header string
	var rows [][]string
	first := true

	for scanner.Scan() {
		line := scanner.Text()
		if first {
			header = line
			first = false
			continue
		}

		fields := strings.Fields(line)
		if len(fields) <= addrColumn {
			rows = append(rows, fields)
			continue
		}

		loc, ok := table.Lookup(fields[addrColumn])
		if !ok {
			loc = Placeholder
		}

		row := make([]string, 0, len(fields)+1)
		row = append(row, fields[:addrColumn+1]...)
		row = append(row, loc)
		row = append(row, fields[addrColumn+1:]...)
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read trace")
	}
	if first {
		return errors.New("empty trace")
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, header)

	widths := columnWidths(rows)
	for _, row := range rows {
		for i, field := range row {
			if i > 0 {
				bw.WriteByte(' ')
			}
			if i < len(row)-1 {
				fmt.Fprintf(bw, "%-*s", widths[i], field)
			} else {
				bw.WriteString(field)
			}
		}
		bw.WriteByte('\n')
	}

	return errors.Wrap(bw.Flush(), "write annotated trace")
}

func columnWidths(rows [][]string) []int {
	var widths []int
	for _, row := range rows {
		for i, field := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if len(field) > widths[i] {
				widths[i] = len(field)
			}
		}
	}
	return widths
}

// AnnotateFile annotates a trace file into an output file. The output is
// written to a temporary file first and renamed into place, so a failed run
// leaves no output behind.
func AnnotateFile(tracePath, outPath string, table DebugTable) error {
	in, err := os.Open(tracePath)
	if err != nil {
		return errors.Wrap(err, "open trace")
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".annotate-*")
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer os.Remove(tmp.Name())

	if err := Annotate(in, tmp, table); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close output")
	}

	return errors.Wrap(os.Rename(tmp.Name(), outPath), "place output")
}

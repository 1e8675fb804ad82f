// Package annotate joins a runtime execution trace with debug information
// extracted from the program binary, attaching a source location to every
// trace row that has one.
package annotate

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// A DebugTable maps normalized instruction addresses to "file:line" strings.
type DebugTable map[string]string

// NewDebugTable returns an empty table.
func NewDebugTable() DebugTable {
	return make(DebugTable)
}

// normalizeAddr canonicalizes an address token so trace and debug-info
// spellings of the same address compare equal.
func normalizeAddr(tok string) string {
	tok = strings.TrimSuffix(tok, ":")
	tok = strings.ToLower(tok)
	tok = strings.TrimPrefix(tok, "0x")
	tok = strings.TrimLeft(tok, "0")
	if tok == "" {
		tok = "0"
	}
	return tok
}

// Lookup resolves one address token.
func (t DebugTable) Lookup(addr string) (string, bool) {
	loc, ok := t[normalizeAddr(addr)]
	return loc, ok
}

// Merge reads debug-info lines into the table. Each useful line carries the
// address key as its first token, the source file as its third, and the line
// number as its sixth; shorter lines are ignored. Later files win on
// conflicting addresses.
func (t DebugTable) Merge(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		t[normalizeAddr(fields[0])] = fields[2] + ":" + fields[5]
	}

	return errors.Wrap(scanner.Err(), "read debug info")
}

// MergeFile reads one debug-info file into the table.
func (t DebugTable) MergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open debug info")
	}
	defer f.Close()

	return errors.Wrapf(t.Merge(f), "%s", path)
}

// MergeFromTool runs an external toolchain utility over a binary and feeds
// its output into the table. A non-zero exit aborts with the tool's stderr;
// no partial entries are kept.
func (t DebugTable) MergeFromTool(tool string, args ...string) error {
	cmd := exec.Command(tool, args...)

	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s failed: %s",
			tool, strings.TrimSpace(errOut.String()))
	}

	return errors.Wrapf(t.Merge(&out), "%s output", tool)
}

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jittakal/gctrace/internal/decoder"
	"github.com/jittakal/gctrace/pkg/catalog"
	"github.com/jittakal/gctrace/pkg/event"
)

// objectFields are the pointer fields that name the start of an object
// whose extent is given by the record's size field.
var objectFields = map[string]bool{"obj": true, "from": true, "to": true, "start": true}

type dumpFilter struct {
	kinds    map[event.Kind]bool
	addr     uint64
	hasAddr  bool
	bgOnly   bool
	skipBack bool
}

func (f *dumpFilter) match(rec *event.Record) bool {
	if len(f.kinds) > 0 && !f.kinds[rec.Kind()] {
		return false
	}
	if f.bgOnly && !rec.Background() {
		return false
	}
	if f.skipBack && rec.Background() {
		return false
	}
	if f.hasAddr && !matchesAddr(rec, f.addr) {
		return false
	}
	return true
}

// matchesAddr reports whether any pointer field of rec equals addr, or addr
// falls inside the object the record describes.
func matchesAddr(rec *event.Record, addr uint64) bool {
	size, sized := rec.Field("size")
	for _, f := range rec.Fields {
		if !f.Pointer {
			continue
		}
		if f.Value == addr {
			return true
		}
		if sized && objectFields[f.Name] && addr > f.Value && addr-f.Value < size {
			return true
		}
	}
	return false
}

// parseKinds resolves --kind values, given as catalog names or numbers.
func parseKinds(cat *catalog.Catalog, values []string) (map[event.Kind]bool, error) {
	kinds := make(map[event.Kind]bool, len(values))
	for _, v := range values {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			if _, ok := cat.Lookup(event.Kind(n)); !ok {
				return nil, fmt.Errorf("unknown event kind %d", n)
			}
			kinds[event.Kind(n)] = true
			continue
		}
		desc, ok := cat.ByName(v)
		if !ok {
			return nil, fmt.Errorf("unknown event %q", v)
		}
		kinds[desc.Kind] = true
	}
	return kinds, nil
}

func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	addr, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

// formatRecord renders one record as a dump line:
//
//	<offset> <name>[/bg] field=value ...
func formatRecord(rec *event.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%10d %s", rec.Offset, rec.Name)
	if rec.Background() {
		b.WriteString("/bg")
	}
	for _, f := range rec.Fields {
		if f.Pointer {
			fmt.Fprintf(&b, " %s=%#x", f.Name, f.Value)
		} else {
			fmt.Fprintf(&b, " %s=%d", f.Name, f.Value)
		}
	}
	return b.String()
}

func formatHeader(path string, h event.Header, continued bool) string {
	s := fmt.Sprintf("# %s version=%d pointer_size=%d little_endian=%t",
		path, h.Version, h.PointerSize, h.LittleEndian)
	if continued {
		s += " (continued)"
	}
	return s
}

// dumpFile writes the records of one trace file that pass filter and
// returns how many were written. prev is the header of the previous file of
// the trace, used when the file has none.
func dumpFile(w io.Writer, path string, cat *catalog.Catalog, filter *dumpFilter, prev event.Header) (event.Header, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return prev, 0, err
	}
	defer f.Close()

	r, err := decoder.NewContinuationReader(f, path, cat, prev)
	if err != nil {
		return prev, 0, err
	}
	fmt.Fprintln(w, formatHeader(path, r.Header(), r.Continued()))

	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Header(), n, nil
		}
		if err != nil {
			return r.Header(), n, err
		}
		if filter.match(&rec) {
			fmt.Fprintln(w, formatRecord(&rec))
			n++
		}
	}
}

func newDumpCommand(a *app) *cobra.Command {
	var (
		kinds      []string
		match      string
		background bool
		foreground bool
	)

	dumpCmd := &cobra.Command{
		Use:   "dump [trace-path...]",
		Short: "Print the records of trace files",
		Long: `Print the records of one or more trace files as text.

A path that does not name a file is treated as the prefix of rotated files
(<path>.0, <path>.1, ...), which are dumped in rotation order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if background && foreground {
				return fmt.Errorf("--background and --foreground are mutually exclusive")
			}

			cat := catalog.Default()
			filter := &dumpFilter{bgOnly: background, skipBack: foreground}

			var err error
			if filter.kinds, err = parseKinds(cat, kinds); err != nil {
				return err
			}
			if match != "" {
				if filter.addr, err = parseAddr(match); err != nil {
					return err
				}
				filter.hasAddr = true
			}

			files, err := tracePaths(a, args)
			if err != nil {
				return err
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			total := 0
			header := event.NativeHeader()
			for _, path := range files {
				var n int
				header, n, err = dumpFile(out, path, cat, filter, header)
				total += n
				if err != nil {
					return fmt.Errorf("failed to dump %s: %w", path, err)
				}
			}
			a.logger.Debug("dump finished", "files", len(files), "records", total)
			return nil
		},
	}
	dumpCmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Only show these event kinds (names or numbers)")
	dumpCmd.Flags().StringVarP(&match, "match", "m", "", "Only show records referring to this address (hex)")
	dumpCmd.Flags().BoolVar(&background, "background", false, "Only show records from background threads")
	dumpCmd.Flags().BoolVar(&foreground, "foreground", false, "Hide records from background threads")
	return dumpCmd
}

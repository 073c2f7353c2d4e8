package capture

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
)

var header = []string{"t", "u", "v"}

// WriteCSV writes a t,u,v header followed by one record per row.
func WriteCSV(w io.Writer, rows []decode.Plant) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range rows {
		record := []string{formatFloat(p.T), formatFloat(p.U), formatFloat(p.V)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes rows to path, replacing any existing file, and returns the
// size of the written file.
func SaveCSV(path string, rows []decode.Plant) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Summary is the line printed after a capture has been saved.
func Summary(n int, path string, size int64) string {
	return fmt.Sprintf("Saved %s samples to %s (%s)", humanize.Comma(int64(n)), path, humanize.Bytes(uint64(size)))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

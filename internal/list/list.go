package list

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"dosnap/internal/index"
	"dosnap/internal/retention"

	"github.com/dustin/go-humanize"
)

type Info struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Datetime int64  `json:"datetime"`
	Age      string `json:"age"`
}

type Output struct {
	Filesystem string `json:"filesystem"`
	Suffix     string `json:"suffix"`
	Directory  string `json:"directory"`
	Snapshots  []Info `json:"snapshots"`
	Summary    struct {
		Total  int    `json:"total"`
		Newest string `json:"newest,omitempty"`
		Oldest string `json:"oldest,omitempty"`
	} `json:"summary"`
}

// Build describes records, which are ordered newest first, relative to now.
func Build(filesystem, suffix, dir string, records []index.Record, now time.Time) Output {
	output := Output{
		Filesystem: filesystem,
		Suffix:     suffix,
		Directory:  dir,
		Snapshots:  []Info{},
	}

	for _, r := range records {
		output.Snapshots = append(output.Snapshots, Info{
			Name:     r.Name,
			Path:     r.Path,
			Datetime: r.Time.Unix(),
			Age:      humanize.RelTime(r.Time, now, "ago", "from now"),
		})
	}

	output.Summary.Total = len(records)
	if len(records) > 0 {
		output.Summary.Newest = records[0].Name
		output.Summary.Oldest = records[len(records)-1].Name
	}

	return output
}

func Write(w io.Writer, output Output, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(output); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range output.Snapshots {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Age)
	}
	fmt.Fprintf(tw, "%s: %d snapshot(s) with suffix %s\n", output.Filesystem, output.Summary.Total, output.Suffix)
	return tw.Flush()
}

// WritePlan prints one line per decision: what is kept, under which tier, and
// what is (or would be) deleted.
func WritePlan(w io.Writer, filesystem string, decisions []retention.Decision) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "# %s\n", filesystem)
	for _, d := range decisions {
		if d.Keep {
			fmt.Fprintf(tw, "keep\t%s\t%s\n", d.Record.Name, d.Tier)
		} else {
			fmt.Fprintf(tw, "delete\t%s\t\n", d.Record.Name)
		}
	}
	fmt.Fprintf(tw, "# %d kept, %d to delete\n", len(retention.Kept(decisions)), len(retention.Pruned(decisions)))
	return tw.Flush()
}

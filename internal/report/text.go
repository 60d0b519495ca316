package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

const undefined = "-"

// WriteText renders r as aligned plain-text tables.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Batch %s (%s)\n\n", r.BatchID, r.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintln(tw, "RUN\tSIGNAL\tSTART\tEND\tMAGNITUDE\tHARDNESS")
	for _, run := range r.Runs {
		d := run.Disturbance
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.RunID, d.Signal, formatFloat(d.StartTime), formatFloat(d.EndTime),
			formatValue(d.Magnitude), formatValue(run.Hardness))
	}
	fmt.Fprintln(tw)

	writeScores(tw, "SCORES", r.Scores)
	writeScores(tw, "NORMALIZED", r.Normalized)

	if len(r.Summary) > 0 {
		fmt.Fprintln(tw, "COLUMN\tDEFINED\tMEAN\tSTDDEV\tMIN\tMAX\tBEST")
		for _, s := range r.Summary {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				s.Column, s.Defined, formatValue(s.Mean), formatValue(s.StdDev),
				formatValue(s.Min), formatValue(s.Max), orDash(s.Best))
		}
		fmt.Fprintln(tw)
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(tw, "FAILED RUN\tKIND\tERROR")
		for _, f := range r.Failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.RunID, f.Kind, f.Error)
		}
		fmt.Fprintln(tw)
	}

	if len(r.MetricFailures) > 0 {
		fmt.Fprintln(tw, "RUN\tUNDEFINED SCORE\tERROR")
		for _, f := range r.MetricFailures {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.RunID, f.Column, f.Error)
		}
	}

	return tw.Flush()
}

func writeScores(w io.Writer, title string, t ScoreTableView) {
	if len(t.Rows) == 0 {
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", title, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = formatValue(v)
		}
		fmt.Fprintf(w, "%s\t%s\n", row.RunID, strings.Join(cells, "\t"))
	}
	fmt.Fprintln(w)
}

func formatValue(v *float64) string {
	if v == nil {
		return undefined
	}
	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func orDash(s string) string {
	if s == "" {
		return undefined
	}
	return s
}

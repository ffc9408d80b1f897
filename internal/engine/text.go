package engine

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chrissnell/precipgen/internal/precip"
)

func fmtEstimate(e precip.Estimate) string {
	if !e.Valid {
		return "-"
	}
	return fmt.Sprintf("%.4f", e.Value)
}

// WriteText renders the report as plain tables.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "run %s  generated %s  precipgen %s\n", r.RunID, r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"), r.Version)
	fmt.Fprintf(tw, "series %s .. %s  days=%d missing=%d coverage=%.3f  longest wet=%d dry=%d\n",
		r.Series.First.Format("2006-01-02"), r.Series.Last.Format("2006-01-02"),
		r.Series.Days, r.Series.Missing, r.Series.Coverage, r.Series.Spells.LongestWet, r.Series.Spells.LongestDry)
	fmt.Fprintf(tw, "wet threshold %g %s  window %gy overlap %g\n",
		r.Settings.WetThreshold, r.Settings.Units, r.Settings.WindowYears, r.Settings.OverlapFraction)

	if an := r.Series.Annual; an != nil {
		fmt.Fprintln(tw, "\nANNUAL TOTALS")
		fmt.Fprintln(tw, "YEAR\tTOTAL\tCOVERAGE")
		for _, t := range an.Totals {
			fmt.Fprintf(tw, "%d\t%.2f\t%.3f\n", t.Year, t.Total, t.Coverage)
		}
		fmt.Fprintf(tw, "autocorrelation %s (lag %d)  pww/pwd correlation %s  pww/mean wet correlation %s\n",
			fmtEstimate(an.Autocorrelation), an.AutocorrelationLag,
			fmtEstimate(an.PWWPWDCorrelation), fmtEstimate(an.PWWMeanCorrelation))
	}

	if r.Baseline != nil {
		fmt.Fprintln(tw, "\nMONTHLY PARAMETERS")
		fmt.Fprintln(tw, "MONTH\tPWW\tPWD\tALPHA\tBETA\tWET_DAYS\tOBSERVED_DAYS")
		for _, s := range r.Baseline {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n", s.Month.String()[:3],
				fmtEstimate(s.PWW), fmtEstimate(s.PWD), fmtEstimate(s.Alpha), fmtEstimate(s.Beta),
				s.WetDays, s.ObservedDays)
		}
	}

	for _, h := range r.Histories {
		fmt.Fprintf(tw, "\nHISTORY %s\n", h.Parameter)
		fmt.Fprintln(tw, "WINDOW_START\tWINDOW_END\tVALUE\tCOVERAGE\tQUALITY")
		for _, row := range h.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%s\n", row.Start.Format("2006-01-02"), row.End.Format("2006-01-02"),
				fmtEstimate(row.Value), row.Coverage, row.Quality)
		}
	}

	if len(r.Waves) > 0 {
		fmt.Fprintln(tw, "\nWAVE COMPONENTS")
		fmt.Fprintln(tw, "PARAMETER\tFREQUENCY\tPERIOD\tAMPLITUDE\tPHASE\tVARIANCE_EXPLAINED\tCLASS")
		for _, wr := range r.Waves {
			d := wr.Decomposition
			fmt.Fprintf(tw, "%s\ttrend\t\t\t\tintercept=%.5f slope=%.6f\t\n", wr.Parameter, d.Trend.Intercept, d.Trend.Slope)
			for _, c := range d.Components {
				fmt.Fprintf(tw, "%s\t%.5f\t%.2f\t%.5f\t%.4f\t%.4f\t%s\n", wr.Parameter,
					c.Frequency, c.Period, c.Amplitude, c.Phase, c.VarianceExplained, c.Class)
			}
		}
	}

	if fit := r.RandomWalk; fit != nil {
		fmt.Fprintln(tw, "\nRANDOM WALK")
		fmt.Fprintln(tw, "PARAMETER\tMEAN\tSIGMA\tREVERSION_RATE\tSTABLE")
		for _, m := range fit.Models {
			fmt.Fprintf(tw, "%s\t%.5f\t%.5f\t%.4f\t%t\n", m.Parameter, m.Mean, m.Volatility, m.ReversionRate, m.Stable)
		}

		fmt.Fprintln(tw, "\nCORRELATION")
		header := make([]string, 0, precip.NumParameters)
		for _, p := range precip.Parameters {
			header = append(header, p.String())
		}
		fmt.Fprintf(tw, "\t%s\n", strings.Join(header, "\t"))
		for i, p := range precip.Parameters {
			cells := make([]string, precip.NumParameters)
			for j := range cells {
				cells[j] = fmt.Sprintf("%.3f", fit.Correlation[i][j])
			}
			fmt.Fprintf(tw, "%s\t%s\n", p, strings.Join(cells, "\t"))
		}
	}

	for _, s := range r.Seasonal {
		fmt.Fprintf(tw, "\nSEASON %s\n", strings.ToUpper(s.Season))
		fmt.Fprintln(tw, "PARAMETER\tMEAN\tSIGMA\tREVERSION_RATE\tSTABLE")
		for _, m := range s.Fit.Models {
			fmt.Fprintf(tw, "%s\t%.5f\t%.5f\t%.4f\t%t\n", m.Parameter, m.Mean, m.Volatility, m.ReversionRate, m.Stable)
		}
	}

	if proj := r.Projection; proj != nil {
		fmt.Fprintf(tw, "\nPROJECTION %s\n", proj.Mode)
		fmt.Fprintln(tw, "INDEX\tTIME\tPWW\tPWD\tALPHA\tBETA")
		for _, pt := range proj.Points {
			fmt.Fprintf(tw, "%d\t%.2f\t%s\t%s\t%s\t%s\n", pt.Index, pt.Time,
				fmtEstimate(pt.Values[precip.PWW]), fmtEstimate(pt.Values[precip.PWD]),
				fmtEstimate(pt.Values[precip.Alpha]), fmtEstimate(pt.Values[precip.Beta]))
		}
	}

	if len(r.Skipped) > 0 {
		fmt.Fprintln(tw, "\nSKIPPED")
		for _, s := range r.Skipped {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Stage, s.Subject, s.Error)
		}
	}

	return tw.Flush()
}

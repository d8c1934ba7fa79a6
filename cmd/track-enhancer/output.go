package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/justestif/radio-track-enhancer/internal/enhance"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

var (
	colorInfo    = color.New(color.FgCyan)
	colorSuccess = color.New(color.FgGreen)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed)
	colorHeader  = color.New(color.FgBlue, color.Bold)
)

func printSummary(w io.Writer, res *enhance.Result) {
	fmt.Fprintln(w)
	colorHeader.Fprintf(w, "Batch %s: %d tracks in %s\n",
		res.BatchID, res.Summary.Total, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	printProviderSummary(w, "YouTube", res.Summary.YouTube)
	printProviderSummary(w, "Discogs", res.Summary.Discogs)
	printQuota(w, res.QuotaUsage.YouTube)
	printQuota(w, res.QuotaUsage.Discogs)
}

func printProviderSummary(w io.Writer, name string, s enhance.ProviderSummary) {
	fmt.Fprintf(w, "  %-8s ", name)
	colorSuccess.Fprintf(w, "%d found", s.Found)
	fmt.Fprint(w, ", ")
	if s.Failed > 0 {
		colorError.Fprintf(w, "%d failed", s.Failed)
	} else {
		fmt.Fprintf(w, "%d failed", s.Failed)
	}
	fmt.Fprint(w, ", ")
	colorWarning.Fprintf(w, "%d skipped\n", s.Skipped)
}

func printQuota(w io.Writer, st ratelimit.Status) {
	c := colorInfo
	switch {
	case st.PercentUsed >= 100:
		c = colorError
	case st.PercentUsed >= enhance.QuotaWarningThreshold:
		c = colorWarning
	}
	c.Fprintf(w, "  %-8s quota %d/%d (%.1f%%), %d queued\n",
		st.Provider, st.Used, st.Max, st.PercentUsed, st.QueueLength)
}

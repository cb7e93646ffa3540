package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/gasmon/internal/channels"
	"github.com/srg/gasmon/internal/publish"
	"github.com/srg/gasmon/internal/store"
)

const clearScreenSequence = "\033[2J\033[H"

// snapshotView renders latest-value snapshots as a table or as JSON lines.
type snapshotView struct {
	out        io.Writer
	channels   []channels.Channel
	format     string
	staleAfter time.Duration
	peripheral string
	// redraw clears the screen before each table
	redraw bool
	now    func() time.Time
}

func (v *snapshotView) render(readings map[string]store.Reading) error {
	if v.format == "json" {
		return v.renderJSON(readings)
	}
	return v.renderTable(readings)
}

func (v *snapshotView) renderJSON(readings map[string]store.Reading) error {
	data, err := publish.Encode(publish.EncodingJSON, publish.Snapshot{
		Peripheral: v.peripheral,
		At:         v.now(),
		Readings:   readings,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(v.out, "%s\n", data)
	return err
}

func (v *snapshotView) renderTable(readings map[string]store.Reading) error {
	if v.redraw {
		fmt.Fprint(v.out, clearScreenSequence)
	}

	now := v.now()
	stale := color.New(color.FgYellow)

	w := tabwriter.NewWriter(v.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tVALUE\tUNIT\tAGE")

	for _, ch := range v.channels {
		unit := ch.Unit
		if unit == "" {
			unit = "-"
		}

		r, ok := readings[ch.Label]
		if !ok {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Label, "-", unit, "-")
			continue
		}

		age := r.Age(now)
		value := r.Formatted
		if v.staleAfter > 0 && age > v.staleAfter {
			value = stale.Sprint(value + " (stale)")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Label, value, unit, age.Truncate(time.Second))
	}

	return w.Flush()
}

// Package normalize groups raw behavioral log rows into discrete events.
//
// Rows whose samples lie within one sample of the cluster's first row are
// treated as one logical event, unless the cluster already holds a row with
// the same source type. Each cluster is then classified by an ordered rule
// chain; clusters that yield no event are kept as IgnoredCluster markers.
package normalize

import (
	"log/slog"

	"github.com/ppiankov/stimalign/internal/model"
)

// Result holds the normalized events of one log
type Result struct {
	Events  []model.NormalizedEvent
	Ignored []model.IgnoredCluster
}

// Normalizer clusters and classifies behavioral log rows
type Normalizer struct {
	rules *Rules
}

// New creates a normalizer; nil rules selects the default markers
func New(rules *Rules) *Normalizer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Normalizer{rules: rules}
}

type cluster struct {
	ref  int
	rows []model.RawLogRow
}

func (c *cluster) accepts(row model.RawLogRow) bool {
	if row.Sample != c.ref && row.Sample != c.ref+1 {
		return false
	}
	for _, r := range c.rows {
		if r.Type == row.Type {
			return false
		}
	}
	return true
}

// Normalize processes rows in log order. An unrecognized presentation row
// aborts the whole log.
func (n *Normalizer) Normalize(rows []model.RawLogRow) (*Result, error) {
	res := &Result{
		Events:  make([]model.NormalizedEvent, 0, len(rows)),
		Ignored: []model.IgnoredCluster{},
	}

	var cur *cluster
	for _, row := range rows {
		if cur != nil && cur.accepts(row) {
			cur.rows = append(cur.rows, row)
			continue
		}
		if cur != nil {
			if err := n.flush(cur, res); err != nil {
				return nil, err
			}
		}
		cur = &cluster{ref: row.Sample, rows: []model.RawLogRow{row}}
	}
	if cur != nil {
		if err := n.flush(cur, res); err != nil {
			return nil, err
		}
	}

	slog.Debug("log normalized",
		"rows", len(rows),
		"events", len(res.Events),
		"ignored", len(res.Ignored))

	return res, nil
}

// flush classifies a finished cluster into an event or an ignored marker
func (n *Normalizer) flush(c *cluster, res *Result) error {
	first := c.rows[0]

	for _, row := range c.rows {
		v := n.rules.classify(row)
		switch {
		case v.kind == ruleNone:
			continue
		case v.kind == ruleUnrecognized:
			return &RowError{Row: row}
		case v.discards():
			res.Ignored = append(res.Ignored, model.IgnoredCluster{
				Sample: first.Sample,
				Rows:   c.rows,
				Reason: v.reason,
			})
			return nil
		default:
			res.Events = append(res.Events, model.NormalizedEvent{
				Sample:   first.Sample,
				Category: v.category,
				Onset:    first.Onset,
				Form:     v.form,
			})
			return nil
		}
	}

	res.Ignored = append(res.Ignored, model.IgnoredCluster{
		Sample: first.Sample,
		Rows:   c.rows,
		Reason: "unclassified",
	})
	return nil
}

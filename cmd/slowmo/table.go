package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableView is one rendered listing. Rows shorter than Headers are padded.
type tableView struct {
	Title   string
	Headers []string
	Aligns  []columnAlignment
	Rows    [][]string
	Footer  string
	// MaxWidth truncates every column to this many runes when positive.
	MaxWidth int
}

func (v tableView) render() string {
	columns := len(v.Headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	style.Title.Format = text.FormatDefault
	tw.SetStyle(style)
	if v.Title != "" {
		tw.SetTitle(v.Title)
	}
	tw.AppendHeader(toRow(v.Headers, columns))
	for _, row := range v.Rows {
		tw.AppendRow(toRow(row, columns))
	}
	if v.Footer != "" {
		footer := make(table.Row, columns)
		for i := range footer {
			footer[i] = v.Footer
		}
		tw.AppendFooter(footer, table.RowConfig{AutoMerge: true})
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(v.Aligns) && v.Aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    v.MaxWidth,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(values []string, columns int) table.Row {
	row := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

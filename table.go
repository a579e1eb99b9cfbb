package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/scopeview/pkg/acquire"
	"github.com/scopeview/pkg/source"
)

// statusTable renders one row: loop state, counters and the latest value per channel.
func statusTable(st acquire.Status, stats WindowStats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"State", "Source", "Samples", "Frames", "Bad", "Rows", "Rec", "Ch1", "Ch2", "Ch3", "Ch4"})

	row := table.Row{
		st.StateName,
		string(st.Source),
		st.Samples,
		st.Frames,
		st.ChecksumErrors + st.ShortFrames,
		st.Rows,
		st.Recording,
	}
	for _, cs := range stats.Channels {
		row = append(row, strconv.FormatFloat(cs.Last, 'f', 1, 64))
	}
	// An empty window has no last values.
	for len(row) < 11 {
		row = append(row, "-")
	}
	tw.AppendRow(row)

	// State and Source read left to right, every count lines up on the right.
	configs := []table.ColumnConfig{
		{Name: "State", Align: text.AlignLeft},
		{Name: "Source", Align: text.AlignLeft},
	}
	for _, name := range []string{"Samples", "Frames", "Bad", "Rows", "Ch1", "Ch2", "Ch3", "Ch4"} {
		configs = append(configs, table.ColumnConfig{Name: name, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// portsTable lists serial devices next to the supported speeds, marking the default.
func portsTable(ports []string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Device", "Baud"})

	rows := max(len(ports), len(source.BaudRates))
	for i := 0; i < rows; i++ {
		var num, device, baud string
		if i < len(ports) {
			num, device = strconv.Itoa(i+1), ports[i]
		} else if i == 0 {
			device = "no serial ports found"
		}
		if i < len(source.BaudRates) {
			baud = strconv.Itoa(source.BaudRates[i])
			if source.BaudRates[i] == source.DefaultBaud {
				baud += " (default)"
			}
		}
		tw.AppendRow(table.Row{num, device, baud})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Baud", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

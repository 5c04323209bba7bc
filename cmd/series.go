package main

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmprocess-cli/internal/fetcher"
	"github.com/sells-group/gmprocess-cli/internal/metrics"
)

// openInput opens path, or stdin when path is "-" or empty.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	return f, nil
}

func readTable(ctx context.Context, r io.Reader) (fetcher.Header, [][]string, error) {
	return fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{Comment: '#', TrimSpace: true})
}

// readTimePair reads the h1 and h2 columns of a CSV.
func readTimePair(ctx context.Context, r io.Reader) (metrics.TimeDomainPair, error) {
	header, rows, err := readTable(ctx, r)
	if err != nil {
		return metrics.TimeDomainPair{}, err
	}
	idx, err := header.Require("h1", "h2")
	if err != nil {
		return metrics.TimeDomainPair{}, err
	}

	var pair metrics.TimeDomainPair
	for i, row := range rows {
		vals, err := parseRow(row, idx, i)
		if err != nil {
			return metrics.TimeDomainPair{}, err
		}
		pair.H1 = append(pair.H1, vals[0])
		pair.H2 = append(pair.H2, vals[1])
	}
	return pair, nil
}

// readSpectra reads a CSV with a freqs column. Every other column is a
// channel named by its header.
func readSpectra(ctx context.Context, r io.Reader) (metrics.FrequencyDomainSeries, error) {
	header, rows, err := readTable(ctx, r)
	if err != nil {
		return metrics.FrequencyDomainSeries{}, err
	}
	freqIdx, err := header.Require("freqs")
	if err != nil {
		return metrics.FrequencyDomainSeries{}, err
	}

	// Header maps name to position; invert it to keep column order.
	names := make([]string, len(header))
	for name, i := range header {
		if i < len(names) {
			names[i] = name
		}
	}
	idx := []int{freqIdx[0]}
	var series metrics.FrequencyDomainSeries
	for i, name := range names {
		if i == freqIdx[0] || name == "" {
			continue
		}
		idx = append(idx, i)
		series.Channels = append(series.Channels, metrics.Channel{Name: name})
	}

	for line, row := range rows {
		vals, err := parseRow(row, idx, line)
		if err != nil {
			return metrics.FrequencyDomainSeries{}, err
		}
		series.Freqs = append(series.Freqs, vals[0])
		for c := range series.Channels {
			series.Channels[c].Values = append(series.Channels[c].Values, vals[c+1])
		}
	}
	return series, nil
}

func parseRow(row []string, idx []int, line int) ([]float64, error) {
	out := make([]float64, len(idx))
	for j, i := range idx {
		if i >= len(row) {
			return nil, eris.Errorf("row %d: missing column %d", line+1, i+1)
		}
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "row %d", line+1)
		}
		out[j] = v
	}
	return out, nil
}

// Package dataset reads and writes the flat text encoding of labelled feature
// vectors: one sample per line, `f1,f2,...,fn=>label`.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"signal-trainer/internal/common"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
)

// Dataset holds parallel feature and label arrays. It is never mutated after Load returns.
type Dataset struct {
	Features [][]float64
	Labels   []float64
	Count    int
}

// Summary describes a loaded dataset for logging
type Summary struct {
	Samples       int
	FeatureLength int
	PositiveRatio float64
	FeatureMean   float64
	FeatureStdDev float64
}

// ParseError reports a malformed line. Column is the 1-based index of the
// offending feature token, or 0 when the line as a whole is at fault.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Content string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d: token %d: %s: %q", e.Path, e.Line, e.Column, e.Reason, e.Content)
	}
	return fmt.Sprintf("%s:%d: %s: %q", e.Path, e.Line, e.Reason, e.Content)
}

func (e *ParseError) Unwrap() error {
	return common.ErrParse
}

// Load reads the dataset at path. Blank lines are skipped. Any malformed line or
// inconsistent feature length aborts the load without a partial result.
func Load(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open dataset: %w", common.ErrIO, err)
	}
	defer file.Close()

	var (
		features [][]float64
		labels   []float64
		lineNo   int
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		vec, label, err := ParseLine(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Path = path
				pe.Line = lineNo
			}
			return nil, err
		}

		features = append(features, vec)
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read dataset: %w", common.ErrIO, err)
	}

	for i := 1; i < len(features); i++ {
		if len(features[i]) != len(features[0]) {
			return nil, fmt.Errorf("%w: sample %d has %d features, expected %d",
				common.ErrShape, i+1, len(features[i]), len(features[0]))
		}
	}

	ds := &Dataset{Features: features, Labels: labels, Count: len(features)}

	log.Debug().
		Str("path", path).
		Int("samples", ds.Count).
		Msg("Dataset loaded")

	return ds, nil
}

// ParseLine parses a single trimmed, non-blank sample line. Line and Path of a
// returned ParseError are left for the caller to fill in.
func ParseLine(line string) ([]float64, float64, error) {
	if n := strings.Count(line, common.LabelSeparator); n != 1 {
		reason := "missing label separator"
		if n > 1 {
			reason = "more than one label separator"
		}
		return nil, 0, &ParseError{Content: line, Reason: reason}
	}

	data, output, _ := strings.Cut(line, common.LabelSeparator)

	vec, err := ParseFeatures(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Content = line
		}
		return nil, 0, err
	}

	label, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return nil, 0, &ParseError{Content: line, Reason: fmt.Sprintf("invalid label %q", output)}
	}

	return vec, label, nil
}

// ParseFeatures parses the comma-separated feature part of a line.
func ParseFeatures(data string) ([]float64, error) {
	tokens := strings.Split(data, common.FeatureSeparator)
	vec := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, &ParseError{Column: i + 1, Content: data, Reason: fmt.Sprintf("invalid feature %q", tok)}
		}
		vec[i] = v
	}
	return vec, nil
}

// FormatSample renders a sample in the dataset line encoding without a line terminator.
func FormatSample(features []float64, label float64) string {
	parts := make([]string, len(features))
	for i, v := range features {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, common.FeatureSeparator) + common.LabelSeparator + strconv.FormatFloat(label, 'f', -1, 64)
}

// FeatureLength returns the length shared by every feature vector, or 0 for an empty dataset.
func (ds *Dataset) FeatureLength() int {
	if len(ds.Features) == 0 {
		return 0
	}
	return len(ds.Features[0])
}

// Summary computes label balance and feature moments across all samples.
func (ds *Dataset) Summary() Summary {
	s := Summary{Samples: ds.Count, FeatureLength: ds.FeatureLength()}
	if ds.Count == 0 {
		return s
	}

	positives := 0
	for _, l := range ds.Labels {
		if l >= 0.5 {
			positives++
		}
	}
	s.PositiveRatio = float64(positives) / float64(ds.Count)

	flat := make(stats.Float64Data, 0, ds.Count*s.FeatureLength)
	for _, row := range ds.Features {
		flat = append(flat, row...)
	}
	if mean, err := flat.Mean(); err == nil {
		s.FeatureMean = mean
	}
	if sd, err := flat.StandardDeviation(); err == nil {
		s.FeatureStdDev = sd
	}

	return s
}

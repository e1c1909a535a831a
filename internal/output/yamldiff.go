package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gonvenience/ytbx"
	"github.com/homeport/dyff/pkg/dyff"
	"sigs.k8s.io/yaml"
)

// RenderDiff renders a structural diff between two values using dyff.
// Both values are serialized to YAML first; an empty string means no changes.
func RenderDiff(fromName string, from interface{}, toName string, to interface{}, useColor bool) (string, error) {
	fromInput, err := toInputFile(fromName, from)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", fromName, err)
	}
	toInput, err := toInputFile(toName, to)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", toName, err)
	}

	report, err := dyff.CompareInputFiles(fromInput, toInput)
	if err != nil {
		return "", fmt.Errorf("comparing %s and %s: %w", fromName, toName, err)
	}
	if len(report.Diffs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	writer := &dyff.HumanReport{
		Report:            report,
		DoNotInspectCerts: true,
		NoTableStyle:      !useColor,
		OmitHeader:        true,
	}
	if err := writer.WriteReport(io.Writer(&buf)); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	lines := strings.Split(buf.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func toInputFile(name string, v interface{}) (ytbx.InputFile, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return ytbx.InputFile{}, err
	}
	docs, err := ytbx.LoadYAMLDocuments(data)
	if err != nil {
		return ytbx.InputFile{}, err
	}
	return ytbx.InputFile{Location: name, Documents: docs}, nil
}

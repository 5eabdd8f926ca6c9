package kronoscli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"sigs.k8s.io/yaml"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(format string) error {
	switch strings.ToLower(format) {
	case formatTable, formatJSON, formatYAML, "":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (table|json|yaml)", format)
	}
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printYAML(w io.Writer, data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// render prints data as JSON or YAML, or hands a table writer to table.
func (a *app) render(w io.Writer, data interface{}, table func(tw *tabwriter.Writer)) error {
	switch strings.ToLower(a.output) {
	case formatJSON:
		return printJSON(w, data)
	case formatYAML:
		return printYAML(w, data)
	default:
		tw := newTable(w)
		table(tw)
		return tw.Flush()
	}
}

// compact renders v as single-line JSON for table cells.
func compact(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

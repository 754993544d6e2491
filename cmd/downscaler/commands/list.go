package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/downscaler/internal/window"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List windows that can be mirrored",
	Long: `List the top-level windows the mirror can select, with the handle,
class and owning process of each.

With --tree the child windows that receive forwarded input are listed
under each top-level window.`,
	Example: `  # List windows in table format (default)
  downscaler list

  # List windows in JSON format
  downscaler list --format json

  # Show the child windows of anything matching "notepad"
  downscaler list --filter notepad --tree`,
	RunE: runList,
}

var (
	listFormat string
	listFilter string
	listTree   bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "case-insensitive substring of title, class or process")
	listCmd.Flags().BoolVarP(&listTree, "tree", "t", false, "include child windows")
}

// windowEntry is a node with its children, for --tree output.
type windowEntry struct {
	window.Node
	Children []windowEntry `json:"children,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := window.Open()
	if err != nil {
		return fmt.Errorf("failed to open window backend: %w", err)
	}
	defer backend.Close()

	nodes, err := backend.TopLevel()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	nodes = filterNodes(nodes, listFilter)

	depth := 0
	if listTree {
		depth = cfg.Input.MaxDepth
	}
	entries := buildEntries(backend, nodes, depth)

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "table":
		return printWindowsTable(os.Stdout, entries)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func filterNodes(nodes []window.Node, filter string) []window.Node {
	if filter == "" {
		return nodes
	}
	f := strings.ToLower(filter)
	filtered := make([]window.Node, 0, len(nodes))
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Title), f) ||
			strings.Contains(strings.ToLower(n.Class), f) ||
			strings.Contains(strings.ToLower(n.Process), f) {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// buildEntries walks up to depth levels of children below each node. A
// window that disappears mid-walk is listed without children.
func buildEntries(dir window.Directory, nodes []window.Node, depth int) []windowEntry {
	entries := make([]windowEntry, 0, len(nodes))
	for _, n := range nodes {
		e := windowEntry{Node: n}
		if depth > 0 {
			if children, err := dir.Children(n.Handle); err == nil {
				e.Children = buildEntries(dir, children, depth-1)
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func printWindowsTable(out io.Writer, entries []windowEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "HANDLE\tTITLE\tCLASS\tPROCESS\tPID")
	fmt.Fprintln(w, "------\t-----\t-----\t-------\t---")

	var walk func([]windowEntry, string)
	walk = func(entries []windowEntry, indent string) {
		for _, e := range entries {
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%d\n", indent, e.Handle, e.Title, e.Class, e.Process, e.PID)
			walk(e.Children, indent+"  ")
		}
	}
	walk(entries, "")

	return w.Flush()
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/downscaler/internal/api"
	"github.com/bryanchriswhite/downscaler/internal/mirror"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running mirror",
	Example: `  # Show status as text (default)
  downscaler status

  # Show status as JSON
  downscaler status --format json`,
	RunE: runStatus,
}

var (
	statusFormat string
	statusURL    string
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "output format (text or json)")
	statusCmd.Flags().StringVar(&statusURL, "url", "", "base URL of the mirror API (default is http://localhost:<server_port>)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := statusURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d", cfg.ServerPort)
	}
	st := api.NewClient(url).Status()

	switch statusFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(st)
	case "text":
		printStatus(os.Stdout, st)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'text' or 'json')", statusFormat)
	}
}

func printStatus(w io.Writer, st mirror.Status) {
	fmt.Fprintf(w, "State:    %s\n", st.State)
	if !st.Active || st.Source == nil {
		if st.Query != "" {
			fmt.Fprintf(w, "Query:    %s\n", st.Query)
		}
		return
	}
	fmt.Fprintf(w, "Source:   %s (%s, %s)\n", st.Source.Title, st.Source.Handle, st.Source.Process)
	fmt.Fprintf(w, "Size:     %s -> %s (%s)\n", st.SourceSize, st.MirrorSize, st.Aspect)
	fmt.Fprintf(w, "Factors:  %.3f x %.3f\n", st.Factors.X, st.Factors.Y)
	fmt.Fprintf(w, "Capture:  %.1f fps, %d frames\n", st.Capture.FPS, st.Capture.Frames)
	if p := st.Pointer; p != nil {
		fmt.Fprintf(w, "Pointer:  %d,%d -> %d,%d\n", p.Local.X, p.Local.Y, p.Source.X, p.Source.Y)
	}
}

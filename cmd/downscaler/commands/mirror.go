package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/downscaler/internal/api"
	"github.com/bryanchriswhite/downscaler/internal/capture"
	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/display"
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/logger"
	"github.com/bryanchriswhite/downscaler/internal/mirror"
	"github.com/bryanchriswhite/downscaler/internal/output"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror [QUERY]",
	Short: "Mirror a window",
	Long: `Open the mirror window and the web viewer for a source window.

QUERY is a window title, or a process name when it contains ".exe" or is
prefixed with "process:". Without QUERY the last selected source is used,
and a source can also be picked later through the API or the MCP server.`,
	Example: `  # Mirror a window by title at half size
  downscaler mirror "Untitled - Notepad" --factor 2

  # Mirror by process name into a 960 pixel wide window
  downscaler mirror game.exe --width 960

  # Serve only the web viewer, with the debug overlay
  downscaler mirror process:firefox --no-display --debug`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMirror,
}

var (
	mirrorClass     string
	mirrorFactor    float64
	mirrorWidth     int
	mirrorHeight    int
	mirrorAspect    string
	mirrorFPS       int
	mirrorNoDisplay bool
	mirrorDebug     bool
)

// placeholderSize is the mirror window size before a source is selected.
var placeholderSize = geometry.Size{Width: 640, Height: 360}

func init() {
	rootCmd.AddCommand(mirrorCmd)

	mirrorCmd.Flags().StringVar(&mirrorClass, "class", "", "window class the source must also have")
	mirrorCmd.Flags().Float64Var(&mirrorFactor, "factor", 0, "divide the source size by this factor")
	mirrorCmd.Flags().IntVar(&mirrorWidth, "width", 0, "mirror width (height follows the source aspect ratio unless --height is set)")
	mirrorCmd.Flags().IntVar(&mirrorHeight, "height", 0, "mirror height (width follows the source aspect ratio unless --width is set)")
	mirrorCmd.Flags().StringVar(&mirrorAspect, "aspect", "", "maintain (letterbox) or stretch")
	mirrorCmd.Flags().IntVar(&mirrorFPS, "fps", 0, "capture rate in frames per second")
	mirrorCmd.Flags().BoolVar(&mirrorNoDisplay, "no-display", false, "do not open the mirror window, serve the web viewer only")
	mirrorCmd.Flags().BoolVar(&mirrorDebug, "debug", false, "draw the FPS and pointer overlay")
}

// applyMirrorFlags folds the command line onto cfg. Any size flag replaces
// the configured scaling mode, since the modes are mutually exclusive.
func applyMirrorFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("factor") || flags.Changed("width") || flags.Changed("height") {
		cfg.Scaling = config.ScalingConfig{
			Factor:       mirrorFactor,
			MirrorWidth:  mirrorWidth,
			MirrorHeight: mirrorHeight,
			Aspect:       cfg.Scaling.Aspect,
		}
	}
	if flags.Changed("aspect") {
		cfg.Scaling.Aspect = mirrorAspect
	}
	if flags.Changed("fps") {
		cfg.Capture.FPS = mirrorFPS
	}
	if mirrorNoDisplay {
		cfg.Display.Enabled = false
	}
	if mirrorDebug {
		cfg.Debug.Enabled = true
		cfg.Debug.ShowFPS = true
		cfg.Debug.ShowMouseCoordinates = true
	}
	return cfg.Validate()
}

// initialSize is the mirror window size used until a source is selected.
func initialSize(cfg *config.Config) geometry.Size {
	s := cfg.Scaling
	switch {
	case s.MirrorWidth > 0 && s.MirrorHeight > 0:
		return geometry.Size{Width: s.MirrorWidth, Height: s.MirrorHeight}
	case s.DownscaleWidth > 0 && s.DownscaleHeight > 0:
		return geometry.Size{Width: s.DownscaleWidth, Height: s.DownscaleHeight}
	}
	return placeholderSize
}

// viewerURL is the base URL printed for the viewer and API.
func viewerURL(bind string, port int) string {
	host := bind
	if ip := net.ParseIP(bind); bind == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func runMirror(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyMirrorFlags(cmd, cfg); err != nil {
		return err
	}
	log := logger.WithComponent("mirror-cmd")

	fmt.Println("🪞 downscaler - Interactive window mirror")
	fmt.Println("=========================================")

	backend, err := window.Open()
	if err != nil {
		return fmt.Errorf("failed to open window backend: %w", err)
	}
	defer backend.Close()

	dev, err := capture.OpenDevice(backend, cfg.Capture.FPS)
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	aspect := cfg.AspectMode()
	stream := output.NewMJPEGOutput(output.Config{FPS: cfg.Capture.FPS}, aspect)
	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	var ctrl *mirror.Controller
	var disp *display.Manager
	comps := []capture.Compositor{stream}

	if cfg.Display.Enabled {
		disp, err = display.NewManager(cfg.Display, aspect, display.Handlers{
			Resized: func(size geometry.Size) {
				stream.SetSize(size)
				if err := ctrl.MirrorResized(size); err != nil {
					log.Debug().Err(err).Msg("Mirror resize not applied")
				}
			},
			Pointer: func(ev input.PointerEvent) {
				if err := ctrl.HandlePointer(ev); err != nil {
					log.Debug().Err(err).Str("kind", ev.Kind.String()).Msg("Pointer event not forwarded")
				}
			},
			Closed: cancel,
		})
		switch {
		case errors.Is(err, display.ErrUnsupported):
			log.Warn().Msg("No mirror window on this platform, use the web viewer")
			disp = nil
		case err != nil:
			return err
		default:
			comps = append(comps, disp)
		}
	}

	hidden := func() window.Handle {
		if disp == nil {
			return 0
		}
		return disp.WindowID()
	}
	dir := window.Hide(backend, hidden)

	ctrl = mirror.NewController(cfg, dir, dir, dev, capture.Tee(comps...))
	defer ctrl.Close()
	ctrl.OnScaling(func(size geometry.Size, aspect geometry.AspectMode) {
		stream.SetAspect(aspect)
		stream.SetSize(size)
		if disp != nil {
			disp.SetAspect(aspect)
			disp.Resize(size)
		}
	})

	// Handlers reference ctrl, so the window only opens once it exists.
	if disp != nil {
		if err := disp.Start(initialSize(cfg)); err != nil {
			return fmt.Errorf("failed to open mirror window: %w", err)
		}
		defer disp.Stop()
	}

	query := window.Query{Text: cfg.Source.Query, Class: cfg.Source.Class}
	if len(args) == 1 {
		query = window.Query{Text: args[0], Class: mirrorClass}
	} else if mirrorClass != "" {
		query.Class = mirrorClass
	}
	if query.Text != "" {
		node, err := ctrl.SelectByQuery(query)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("query", query.String()).Msg("Source not selected, pick one through the API")
		case len(args) == 1:
			if err := configMgr.SetSource(config.SourceConfig{Query: query.Text, Class: query.Class}); err != nil {
				log.Warn().Err(err).Msg("Failed to remember source")
			}
			fallthrough
		default:
			log.Info().Str("title", node.Title).Str("handle", node.Handle.String()).Msg("Mirroring")
		}
	}

	server := api.NewServer(ctrl, configMgr, stream)
	go func() {
		if err := server.Start(cfg.BindAddress, cfg.ServerPort); err != nil {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	go func() {
		if err := ctrl.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Source watcher stopped")
		}
	}()

	fmt.Println()
	fmt.Println("✅ downscaler is running!")
	base := viewerURL(cfg.BindAddress, cfg.ServerPort)
	fmt.Printf("   - Viewer: %s\n", base)
	fmt.Printf("   - API: %s/api\n", base)
	fmt.Println("   - Press Ctrl+C to stop")
	fmt.Println()

	<-ctx.Done()

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	return nil
}

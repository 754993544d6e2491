package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/downscaler/internal/config"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage source and scaling profiles",
	Long: `A profile stores a source query together with its scaling options, so
switching between applications does not mean retyping both.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE:  runProfileList,
}

var profileUseCmd = &cobra.Command{
	Use:   "use [ID]",
	Short: "Activate a profile",
	Long:  `Activate the profile with ID. Without ID the active profile is cleared.`,
	Example: `  # Activate a profile
  downscaler profile use game

  # Go back to the base configuration
  downscaler profile use`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfileUse,
}

var profileAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a profile",
	Example: `  # Mirror game.exe at a third of its size
  downscaler profile add Game --query game.exe --factor 3

  # Mirror a browser window into a fixed 800x600 letterbox
  downscaler profile add Docs --query "process:firefox" --downscale 800x600`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileAdd,
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileRemove,
}

var (
	profileQuery     string
	profileClass     string
	profileFactor    float64
	profileWidth     int
	profileHeight    int
	profileDownscale string
	profileAspect    string
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileRemoveCmd)

	profileAddCmd.Flags().StringVar(&profileQuery, "query", "", "source window title or process name")
	profileAddCmd.Flags().StringVar(&profileClass, "class", "", "window class the source must also have")
	profileAddCmd.Flags().Float64Var(&profileFactor, "factor", 0, "divide the source size by this factor")
	profileAddCmd.Flags().IntVar(&profileWidth, "width", 0, "mirror width")
	profileAddCmd.Flags().IntVar(&profileHeight, "height", 0, "mirror height")
	profileAddCmd.Flags().StringVar(&profileDownscale, "downscale", "", "fixed mirror size as WIDTHxHEIGHT")
	profileAddCmd.Flags().StringVar(&profileAspect, "aspect", "maintain", "maintain (letterbox) or stretch")
}

func runProfileList(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	profiles := configMgr.ListProfiles()
	if len(profiles) == 0 {
		fmt.Println("No profiles. Create one with: downscaler profile add NAME --query QUERY")
		return nil
	}
	return printProfilesTable(os.Stdout, profiles, configMgr.Get().ActiveProfileID)
}

func printProfilesTable(out io.Writer, profiles []config.Profile, active string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ACTIVE\tID\tNAME\tSOURCE\tSCALING")
	fmt.Fprintln(w, "------\t--\t----\t------\t-------")
	for _, p := range profiles {
		marker := ""
		if p.ID == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, p.ID, p.Name, p.Source.Query, describeScaling(p.Scaling))
	}
	return w.Flush()
}

// describeScaling renders s the way it would be passed on the command line.
func describeScaling(s config.ScalingConfig) string {
	var mode string
	switch {
	case s.MirrorWidth > 0 && s.MirrorHeight > 0:
		mode = fmt.Sprintf("%dx%d", s.MirrorWidth, s.MirrorHeight)
	case s.MirrorWidth > 0:
		mode = fmt.Sprintf("width %d", s.MirrorWidth)
	case s.MirrorHeight > 0:
		mode = fmt.Sprintf("height %d", s.MirrorHeight)
	case s.Factor > 0:
		mode = fmt.Sprintf("1/%g", s.Factor)
	case s.DownscaleWidth > 0:
		mode = fmt.Sprintf("downscale %dx%d", s.DownscaleWidth, s.DownscaleHeight)
	default:
		mode = "source size"
	}
	if s.Aspect != "" {
		mode += ", " + s.Aspect
	}
	return mode
}

func runProfileUse(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	if err := configMgr.SetActiveProfile(id); err != nil {
		return err
	}

	if id == "" {
		fmt.Println("✅ Active profile cleared")
		return nil
	}

	p, err := configMgr.GetProfile(id)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Active profile: %s (%s, %s)\n", p.Name, p.Source.Query, describeScaling(p.Scaling))
	return nil
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	scaling := config.ScalingConfig{
		Factor:       profileFactor,
		MirrorWidth:  profileWidth,
		MirrorHeight: profileHeight,
		Aspect:       profileAspect,
	}
	if profileDownscale != "" {
		if _, err := fmt.Sscanf(profileDownscale, "%dx%d", &scaling.DownscaleWidth, &scaling.DownscaleHeight); err != nil {
			return fmt.Errorf("invalid downscale size: %s (use WIDTHxHEIGHT)", profileDownscale)
		}
	}

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p, err := configMgr.CreateProfile(args[0], config.SourceConfig{Query: profileQuery, Class: profileClass}, scaling)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Created profile %s (%s)\n", p.ID, describeScaling(p.Scaling))
	return nil
}

func runProfileRemove(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := configMgr.DeleteProfile(args[0]); err != nil {
		return err
	}

	fmt.Printf("✅ Deleted profile %s\n", args[0])
	return nil
}

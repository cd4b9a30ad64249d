package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/andresmejia3/reframe/internal/viewport"
	"github.com/spf13/cobra"
)

var (
	windowOpts   Options
	windowAspect string
	windowSize   string
	windowStep   float64
	windowJSON   bool
)

var windowCmd = &cobra.Command{
	Use:          "window <video>",
	Short:        "Print the crop window schedule that keeps the face in frame",
	Long:         "Computes (or loads) the face track for a video and prints where a crop of the requested aspect ratio or size sits over time. With --size the source is first scaled up to cover the target.",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		windowOpts.Inputs = args
		windowOpts.Workers = 1
		return runWindow(cmd, windowOpts)
	},
}

func init() {
	addTrackingFlags(windowCmd, &windowOpts)
	windowCmd.Flags().StringVarP(&windowAspect, "aspect", "a", "9:16", "Output aspect ratio W:H")
	windowCmd.Flags().StringVar(&windowSize, "size", "", "Exact output size WxH (overrides --aspect)")
	windowCmd.Flags().Float64Var(&windowStep, "time-step", 0.5, "Seconds between printed windows")
	windowCmd.Flags().BoolVar(&windowJSON, "json", false, "Print the schedule as JSON")
	rootCmd.AddCommand(windowCmd)
}

func runWindow(cmd *cobra.Command, opts Options) error {
	if err := validateTrackFlags(&opts); err != nil {
		return err
	}
	if windowStep <= 0 {
		err := fmt.Errorf("must be > 0, got %v", windowStep)
		utils.ShowError("Invalid time step", err, nil)
		return err
	}
	path := opts.Inputs[0]
	ctx := cmd.Context()

	info, err := utils.ProbeVideo(ctx, path)
	if err != nil {
		utils.ShowError("Failed to probe video", err, nil)
		return err
	}
	if info.FPS <= 0 {
		err := fmt.Errorf("ffprobe reported frame rate %v", info.FPS)
		utils.ShowError("Failed to determine video FPS", err, nil)
		return err
	}

	source := viewport.Size{W: info.Width, H: info.Height}
	target, scale, err := resolveTarget(source, windowAspect, windowSize)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	p, err := newPipeline(opts)
	if err != nil {
		return err
	}
	track, err := p.ComputeTrack(ctx, path)
	if err != nil {
		utils.ShowError("Tracking failed for "+path, err, nil)
		return err
	}

	sched := viewport.Schedule{Track: track, FPS: info.FPS, Source: source, Target: target, Scale: scale}
	duration := float64(len(track)) / info.FPS
	keys, err := sched.Sample(duration, windowStep)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🎬 %s: %s @ %.3f fps, crop %s (scale %.3f), %d frames\n",
		path, source, info.FPS, target, scale, len(track))
	return printSchedule(cmd.OutOrStdout(), keys, windowJSON)
}

// resolveTarget picks the crop size and the scale applied to the source first.
func resolveTarget(source viewport.Size, aspect, size string) (viewport.Size, float64, error) {
	if size != "" {
		target, err := parseSize(size)
		if err != nil {
			return viewport.Size{}, 0, err
		}
		return target, viewport.ScaleToFit(source, target), nil
	}
	w, h, err := parseAspect(aspect)
	if err != nil {
		return viewport.Size{}, 0, err
	}
	target, err := viewport.AspectTarget(source, w, h)
	return target, 1, err
}

func printSchedule(out io.Writer, keys []viewport.Keyframe, asJSON bool) error {
	if asJSON {
		if keys == nil {
			keys = []viewport.Keyframe{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tFRAME\tX\tY\tW\tH")
	fmt.Fprintln(w, "----\t-----\t-\t-\t-\t-")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", fmtTime(k.Time), k.Frame, k.X, k.Y, k.Width, k.Height)
	}
	return w.Flush()
}

func parseAspect(s string) (int, int, error) {
	return parsePair(s, ":", "aspect")
}

func parseSize(s string) (viewport.Size, error) {
	w, h, err := parsePair(strings.ToLower(s), "x", "size")
	return viewport.Size{W: w, H: h}, err
}

func parsePair(s, sep, what string) (int, int, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), sep)
	if !ok {
		return 0, 0, fmt.Errorf("invalid %s %q", what, s)
	}
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA != nil || errB != nil || x <= 0 || y <= 0 {
		return 0, 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return x, y, nil
}

// fmtTime renders seconds as HH:MM:SS.mmm.
func fmtTime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60
	s := int(duration.Seconds()) % 60
	ms := int(duration.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

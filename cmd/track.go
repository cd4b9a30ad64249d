package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/reframe/internal/detect"
	"github.com/andresmejia3/reframe/internal/pipeline"
	"github.com/andresmejia3/reframe/internal/smooth"
	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/andresmejia3/reframe/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var trackOpts Options

var trackCmd = &cobra.Command{
	Use:          "track <video>...",
	Short:        "Compute smoothed face tracks (cached per video)",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		trackOpts.Inputs = args
		return runTrack(cmd.Context(), cmd.OutOrStdout(), trackOpts)
	},
}

func init() {
	addTrackingFlags(trackCmd, &trackOpts)
	trackCmd.Flags().IntVarP(&trackOpts.Workers, "workers", "j", cfg.Workers, "Number of videos processed in parallel")
	rootCmd.AddCommand(trackCmd)
}

// addTrackingFlags registers the flags that affect how a track is computed.
func addTrackingFlags(c *cobra.Command, opts *Options) {
	c.Flags().IntVarP(&opts.Stride, "stride", "n", cfg.Stride, "Run the detector on every Nth frame (gaps are interpolated)")
	c.Flags().StringVarP(&opts.Smoother, "smoother", "s", cfg.Smoother, "Smoothing strategy: savgol, gaussian or kalman")
	c.Flags().IntVar(&opts.Window, "window", cfg.Window, "Savitzky-Golay window length (frames)")
	c.Flags().IntVar(&opts.Order, "order", cfg.Order, "Savitzky-Golay polynomial order")
	c.Flags().Float64Var(&opts.Sigma, "sigma", cfg.Sigma, "Gaussian smoothing sigma (frames)")
	c.Flags().Float64Var(&opts.ProcessNoise, "process-noise", smooth.DefaultProcessNoise, "Kalman process noise")
	c.Flags().Float64Var(&opts.MeasurementNoise, "measurement-noise", smooth.DefaultMeasurementNoise, "Kalman measurement noise (pixels^2)")
	c.Flags().Float64VarP(&opts.Threshold, "threshold", "t", cfg.Threshold, "Minimum detection confidence")
	c.Flags().StringVar(&opts.DetectorCmd, "detector-cmd", strings.Join(cfg.DetectorCommand, " "), "Command that starts the face detector subprocess")
	c.Flags().StringVar(&opts.DetectorSocket, "detector-socket", cfg.DetectorSocket, "Unix socket of a running detector service (overrides --detector-cmd)")
	c.Flags().BoolVar(&opts.StrictCache, "strict-cache", false, "Key the cache on file contents and tracking parameters instead of the file name")
}

func runTrack(ctx context.Context, out io.Writer, opts Options) error {
	if err := validateTrackFlags(&opts); err != nil {
		return err
	}

	p, err := newPipeline(opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "📼 Tracking %d video(s) with %s\n", len(opts.Inputs), p.Smoother.Name())
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d detector worker(s)...\n", min(opts.Workers, len(opts.Inputs)))

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("🔍 Reframe Tracking"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	p.OnFrame = func(string, int) { bar.Add(1) }

	start := time.Now()
	results := p.ComputeAll(ctx, opts.Inputs, opts.Workers)
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	failed := 0
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VIDEO\tKEY\tFRAMES\tSOURCE")
	fmt.Fprintln(w, "-----\t---\t------\t------")
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(w, "%s\t%s\t-\tfailed\n", r.Path, r.Key)
		case r.Cached:
			fmt.Fprintf(w, "%s\t%s\t%d\tcache\n", r.Path, r.Key, len(r.Track))
		default:
			fmt.Fprintf(w, "%s\t%s\t%d\tcomputed\n", r.Path, r.Key, len(r.Track))
		}
	}
	w.Flush()

	for _, r := range results {
		if r.Err != nil {
			utils.ShowError("Tracking failed for "+r.Path, r.Err, nil)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(results))
	}
	fmt.Fprintf(os.Stderr, "🏁 Tracking Complete in %s.\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// newPipeline wires the cache, detector transport and smoother selected by opts.
func newPipeline(opts Options) (*pipeline.Pipeline, error) {
	s, err := smooth.New(smoothConfig(opts))
	if err != nil {
		return nil, err
	}

	p := pipeline.New(Cache, pipeline.OpenVideo, detectorFactory(opts))
	p.Smoother = s
	p.Policy = detect.SamplingPolicy{Stride: opts.Stride}
	p.Threshold = opts.Threshold
	p.Logger = log.New(os.Stderr, "", 0)
	if opts.StrictCache {
		params := fmt.Sprintf("%s,stride=%d,threshold=%g", s.Name(), opts.Stride, opts.Threshold)
		p.KeyFunc = func(path string) (string, error) {
			return utils.FingerprintKey(path, params)
		}
	}
	return p, nil
}

func smoothConfig(opts Options) smooth.Config {
	return smooth.Config{
		Strategy:         opts.Smoother,
		Window:           opts.Window,
		Order:            opts.Order,
		Sigma:            opts.Sigma,
		ProcessNoise:     opts.ProcessNoise,
		MeasurementNoise: opts.MeasurementNoise,
	}
}

func detectorFactory(opts Options) pipeline.DetectorFactory {
	if opts.DetectorSocket != "" {
		socket := opts.DetectorSocket
		return func(ctx context.Context, id int) (detect.Detector, error) {
			return worker.NewSocketDetector(socket, worker.DefaultSocketTimeout), nil
		}
	}
	command := strings.Fields(opts.DetectorCmd)
	return func(ctx context.Context, id int) (detect.Detector, error) {
		return worker.NewPythonDetector(ctx, id, command)
	}
}

func validateTrackFlags(opts *Options) error {
	for _, in := range opts.Inputs {
		info, err := os.Stat(in)
		if err != nil {
			if os.IsNotExist(err) {
				utils.ShowError("Input file does not exist", err, nil)
				return err
			}
			utils.ShowError("Unable to access input file", err, nil)
			return err
		}
		if info.IsDir() {
			err := fmt.Errorf("%s is a directory", in)
			utils.ShowError("Input path is a directory, expected a video file", err, nil)
			return err
		}
	}
	if opts.Stride < 1 {
		err := fmt.Errorf("must be >= 1, got %d", opts.Stride)
		utils.ShowError("Invalid stride", err, nil)
		return err
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		err := fmt.Errorf("must be between 0.0 and 1.0, got %f", opts.Threshold)
		utils.ShowError("Invalid detection threshold", err, nil)
		return err
	}
	if _, err := smooth.New(smoothConfig(*opts)); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if opts.DetectorSocket == "" && len(strings.Fields(opts.DetectorCmd)) == 0 {
		err := fmt.Errorf("either --detector-cmd or --detector-socket is required")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"svg2svs/contracts"
	"svg2svs/converter"
	"svg2svs/files_manager"
	"svg2svs/image_source"
	"svg2svs/svs_encoder"
	"svg2svs/tiff_writer"
)

const version = "1.0.0"

var cfgFile string

// SVG2SVS_BASE_WIDTH, SVG2SVS_SERVER_PORT, ...
var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

var rootCmd = &cobra.Command{
	Use:   "svg2svs [flags] <input> <output>",
	Short: "Convert an SVG or raster image into an Aperio SVS pyramid",
	Long: `svg2svs renders an SVG (or resamples a raster image) to a fixed base width
and writes it as a tiled, JPEG compressed Aperio SVS pyramid: the native
layer, a thumbnail and one sub-resolution layer per factor.

When <input> is a directory every supported file in it is converted into the
<output> directory.

Examples:
  # 16000 pixels wide, layers downsampled by 4, 16 and 64
  svg2svs slide.svg slide.svs

  # Smaller base, custom layers
  svg2svs -b 8000 -l 2,8,32 slide.svg slide.svs

  # Whole directory with reports
  svg2svs --report reports/ inputs/ outputs/`,
	Version:       version,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConvert,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.svg2svs.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("backend", contracts.BackendVips, "image backend (vips|magick|native)")
	rootCmd.PersistentFlags().Int("tile-size", contracts.DefaultTileSize, "tile size in pixels, multiple of 16")
	rootCmd.PersistentFlags().Int("workers", runtime.NumCPU(), "tiles extracted concurrently within a layer")
	rootCmd.PersistentFlags().Int("app-mag", contracts.DefaultAppMag, "apparent magnification written to the metadata")
	rootCmd.PersistentFlags().Bool("mpp-from-input", false, "derive MPP from the input resolution when present")

	rootCmd.Flags().StringP("base-width", "b", fmt.Sprint(contracts.DefaultBaseWidth), "width of the native layer in pixels")
	rootCmd.Flags().StringP("layers-factors", "l", "4,16,64", "comma separated downsampling factors of the sub-layers")
	rootCmd.Flags().String("report", "", "write a PDF report to this path (a directory in batch mode)")
	rootCmd.Flags().BoolP("quiet", "q", false, "do not draw progress bars")
	rootCmd.Flags().Int("jobs", max(runtime.NumCPU()-1, 1), "files converted concurrently in batch mode")

	for _, key := range []string{"log-level", "backend", "tile-size", "workers", "app-mag", "mpp-from-input"} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}
	for _, key := range []string{"base-width", "layers-factors", "report", "quiet", "jobs"} {
		viper.BindPFlag(key, rootCmd.Flags().Lookup(key))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".svg2svs")
	}

	viper.SetEnvPrefix("SVG2SVS")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// readFlags collects and validates the configuration of a conversion run.
func readFlags(args []string) (contracts.InputFlags, error) {
	baseWidth, err := contracts.ParseBaseWidth(viper.GetString("base-width"))
	if err != nil {
		return contracts.InputFlags{}, err
	}
	factors, err := contracts.ParseLayersFactors(viper.GetString("layers-factors"))
	if err != nil {
		return contracts.InputFlags{}, err
	}
	flags := contracts.InputFlags{
		InputPath:     args[0],
		OutputPath:    args[1],
		ReportPath:    viper.GetString("report"),
		Backend:       viper.GetString("backend"),
		LayersFactors: factors,
		BaseWidth:     baseWidth,
		TileSize:      viper.GetInt("tile-size"),
		Workers:       viper.GetInt("workers"),
		AppMag:        viper.GetInt("app-mag"),
		MPPFromInput:  viper.GetBool("mpp-from-input"),
	}
	if err := flags.Validate(); err != nil {
		return contracts.InputFlags{}, err
	}
	return flags, nil
}

// startBackend initializes the native library behind the selected backend
// and returns its shutdown function.
func startBackend(backend string, logger *slog.Logger) func() {
	switch backend {
	case contracts.BackendVips:
		image_source.StartVips(logger, runtime.NumCPU())
		return image_source.ShutdownVips
	case contracts.BackendMagick:
		image_source.StartMagick()
		return image_source.ShutdownMagick
	}
	return func() {}
}

func newConverter(flags contracts.InputFlags, logger *slog.Logger, progress svs_encoder.Progress) *converter.Converter {
	return converter.New(converter.Options{
		Backend:      flags.Backend,
		TileSize:     flags.TileSize,
		Workers:      flags.Workers,
		AppMag:       flags.AppMag,
		MPPFromInput: flags.MPPFromInput,
		Open:         tiff_writer.Open,
		Logger:       logger,
		Progress:     progress,
	})
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	flags, err := readFlags(args)
	if err != nil {
		return err
	}

	shutdown := startBackend(flags.Backend, logger)
	defer shutdown()

	startTime := time.Now()
	defer func() {
		logger.Info("done", "elapsed", time.Since(startTime))
	}()

	if info, err := os.Stat(flags.InputPath); err == nil && info.IsDir() {
		return runBatch(cmd, flags, logger)
	}

	var progress *layerProgress
	var observer svs_encoder.Progress
	if !viper.GetBool("quiet") {
		progress = newLayerProgress(cmd.ErrOrStderr())
		observer = progress
	}

	// Ctrl-C: stop drawing, drop the partial output and leave.
	stop := onInterrupt(cmd, func() {
		if progress != nil {
			progress.Stop()
		}
		files_manager.NewAtomicOutput(flags.OutputPath).Discard()
	})
	defer stop()

	summary, err := newConverter(flags, logger, observer).Convert(contracts.ConversionRequest{
		InputPath:     flags.InputPath,
		OutputPath:    flags.OutputPath,
		ReportPath:    flags.ReportPath,
		BaseWidth:     flags.BaseWidth,
		LayersFactors: flags.LayersFactors,
	})
	if err != nil {
		if progress != nil {
			progress.Stop()
		}
		return err
	}

	for i, layer := range summary.Layers {
		fmt.Fprintf(cmd.OutOrStdout(), "%d: %-9s %dx%d, %d tiles\n", i, layer.Kind, layer.Width, layer.Height, layer.Tiles)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Converted to %s\n", flags.OutputPath)
	return nil
}

func runBatch(cmd *cobra.Command, flags contracts.InputFlags, logger *slog.Logger) error {
	if info, err := os.Stat(flags.OutputPath); err != nil || !info.IsDir() {
		return fmt.Errorf("output must be an existing directory when the input is one: %s", flags.OutputPath)
	}
	if flags.ReportPath != "" {
		if err := os.MkdirAll(flags.ReportPath, 0o755); err != nil {
			return fmt.Errorf("error creating report directory: %w", err)
		}
	}

	stop := onInterrupt(cmd, func() {
		discardBatchOutputs(flags.InputPath, flags.OutputPath)
	})
	defer stop()

	results, err := newConverter(flags, logger, nil).ConvertDir(
		flags.InputPath,
		flags.OutputPath,
		flags.ReportPath,
		flags.BaseWidth,
		flags.LayersFactors,
		viper.GetInt("jobs"),
	)
	converted := 0
	for _, r := range results {
		if r.Err == nil {
			converted++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Converted %d of %d files\n", converted, len(results))
	return err
}

// onInterrupt runs cleanup and exits with status 130 on SIGINT or SIGTERM.
// The returned function uninstalls the handler.
func onInterrupt(cmd *cobra.Command, cleanup func()) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigChan; !ok {
			return
		}
		cleanup()
		fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted")
		os.Exit(130)
	}()
	return func() {
		signal.Stop(sigChan)
		close(sigChan)
	}
}

// discardBatchOutputs removes the temporary file of every output a batch
// over inputDir may be writing. Finished outputs are left alone.
func discardBatchOutputs(inputDir, outputDir string) {
	inputs, _, err := files_manager.GetInputPaths(inputDir)
	if err != nil {
		return
	}
	outputs, err := files_manager.OutputPaths(inputs, outputDir)
	if err != nil {
		return
	}
	for _, out := range outputs {
		files_manager.NewAtomicOutput(out).Discard()
	}
}

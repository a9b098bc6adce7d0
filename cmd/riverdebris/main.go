package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"riverdebris/internal/logging"
	"riverdebris/pkg/config"
	"riverdebris/pkg/imageio"
	"riverdebris/pkg/pipeline"
	"riverdebris/pkg/stitch"
	"riverdebris/pkg/tiling"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "riverdebris",
	Short: "Tile rasters and synthesize river debris training examples",
	Long: `riverdebris partitions georeferenced rasters and their river masks into
fixed-size tiles, transplants content from outside the river into it to
manufacture positive debris examples, and stitches tiles back together.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Output.Verbose = verbose
		}
		logger, err = logging.New(cfg.Output.Verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var tileCmd = &cobra.Command{
	Use:   "tile",
	Short: "Tile rasters and inject synthetic anomalies",
	Long: `Pairs every raster in --images with <stem>.png in --masks, resizes both to
the configured image size, partitions them into tiles, injects synthetic
anomalies into eligible tiles and writes tiles plus manifest.yaml to --out.`,
	RunE: runTile,
}

var stitchCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Reassemble the tiles of one example into a full raster",
	Long: `Reassembles the image tiles (or the --kind variant) of one example directory.
With --logits, reads raw float32 model logits per tile instead, scores them as
(1 - sigmoid(logit)) inside the saved region masks and writes the score map,
plus a binary anomaly mask when --mask-out is set.`,
	RunE: runStitch,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the default configuration file",
	Args:  cobra.MaximumNArgs(1),
	// the config file may not exist yet, so skip loading it
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	tileCmd.Flags().String("images", "", "Directory containing rasters")
	tileCmd.Flags().String("masks", "", "Directory containing <stem>.png region masks")
	tileCmd.Flags().String("out", "tiles", "Output directory")
	tileCmd.Flags().Int("workers", 0, "Worker goroutines (overrides config)")
	tileCmd.Flags().Uint64("seed", 0, "Random seed (overrides config)")
	_ = tileCmd.MarkFlagRequired("images")
	_ = tileCmd.MarkFlagRequired("masks")

	stitchCmd.Flags().String("dir", "", "Example directory written by tile")
	stitchCmd.Flags().String("kind", "", "Tile variant to stitch, e.g. anomaly")
	stitchCmd.Flags().String("out", "stitched.png", "Output PNG")
	stitchCmd.Flags().String("logits", "", "Directory of tile_NNN_logits.f32 files to score")
	stitchCmd.Flags().Float64("cut", 0.5, "Score threshold for --mask-out")
	stitchCmd.Flags().String("mask-out", "", "Output PNG for the thresholded anomaly mask")
	_ = stitchCmd.MarkFlagRequired("dir")

	rootCmd.AddCommand(tileCmd, stitchCmd, initConfigCmd)
}

func runTile(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	imageDir, _ := flags.GetString("images")
	maskDir, _ := flags.GetString("masks")
	outDir, _ := flags.GetString("out")
	if flags.Changed("workers") {
		cfg.Processing.NumWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("seed") {
		cfg.Processing.Seed, _ = flags.GetUint64("seed")
	}

	params := &pipeline.Params{
		ImageDir:            imageDir,
		MaskDir:             maskDir,
		OutputDir:           outDir,
		ImageHeight:         cfg.Tiling.ImageHeight,
		ImageWidth:          cfg.Tiling.ImageWidth,
		Tile:                cfg.Tiling.Tile,
		Injection:           cfg.InjectionOptions(),
		Sampler:             cfg.SamplerOptions(),
		NumWorkers:          cfg.Processing.NumWorkers,
		Seed:                cfg.Processing.Seed,
		MinInactiveFraction: cfg.Processing.MinInactiveFraction,
		TrainFraction:       cfg.Processing.TrainFraction,
		SaveTiles:           cfg.Output.SaveTiles,
	}
	processor, err := pipeline.NewProcessor(params, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := processor.Process(ctx)
	if err != nil {
		return err
	}

	logger.Info("Tiling completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("examples", report.Processed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("train", len(report.Train)),
		zap.Int("val", len(report.Val)),
		zap.Int("tiles", report.Summary.Tiles),
		zap.Int("positive", report.Summary.Positive),
		zap.Float64("positiveRatio", report.Summary.PositiveRatio),
		zap.Float64("meanAnomalyArea", report.Summary.MeanAnomalyArea))
	fmt.Fprintf(cmd.OutOrStdout(), "Manifest saved to: %s\n", filepath.Join(outDir, pipeline.ManifestFile))
	return nil
}

func runStitch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	dir, _ := flags.GetString("dir")
	kind, _ := flags.GetString("kind")
	out, _ := flags.GetString("out")
	logitsDir, _ := flags.GetString("logits")

	tiler, err := tiling.NewTiler(cfg.Tiling.ImageHeight, cfg.Tiling.ImageWidth, cfg.Tiling.Tile, cfg.Processing.NumWorkers)
	if err != nil {
		return err
	}
	if logitsDir != "" {
		return runScore(cmd, dir, logitsDir, out, tiler)
	}

	raster, err := pipeline.ReassembleDir(dir, kind, tiler)
	if err != nil {
		return err
	}
	if err := imageio.SavePNG(out, imageio.RasterToImage(raster)); err != nil {
		return err
	}
	logger.Info("Stitched tiles",
		zap.String("dir", dir),
		zap.Int("tiles", tiler.Layout().Count()),
		zap.String("output", out))
	return nil
}

func runScore(cmd *cobra.Command, dir, logitsDir, out string, tiler *tiling.Tiler) error {
	scores, err := pipeline.StitchLogitsDir(dir, logitsDir, tiler)
	if err != nil {
		return err
	}
	if err := imageio.SavePNG(out, imageio.RasterToImage(scores)); err != nil {
		return err
	}

	maskOut, _ := cmd.Flags().GetString("mask-out")
	if maskOut != "" {
		cut, _ := cmd.Flags().GetFloat64("cut")
		mask := stitch.Threshold(scores, 0, cut)
		if err := imageio.SavePNG(maskOut, imageio.MaskToImage(mask)); err != nil {
			return err
		}
		logger.Info("Thresholded scores",
			zap.Float64("cut", cut),
			zap.Int("anomalyPixels", mask.Sum()),
			zap.String("output", maskOut))
	}
	logger.Info("Stitched anomaly scores",
		zap.String("dir", dir),
		zap.String("logits", logitsDir),
		zap.String("output", out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

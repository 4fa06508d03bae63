// Package converter runs the full pipeline for one input: load and
// rasterize, encode the pyramid into a temporary file, move it into place and
// optionally render a report.
package converter

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"svg2svs/contracts"
	"svg2svs/files_manager"
	"svg2svs/image_source"
	"svg2svs/report"
	"svg2svs/svs_encoder"
	"svg2svs/utils"
)

var ErrLoad = errors.New("unable to load input")

type Options struct {
	Backend      string
	TileSize     int
	Workers      int
	AppMag       int
	MPPFromInput bool
	Open         contracts.OpenFunc
	Logger       *slog.Logger
	Progress     svs_encoder.Progress
}

type Converter struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.AppMag <= 0 {
		opts.AppMag = contracts.DefaultAppMag
	}
	return &Converter{opts: opts, logger: logger}
}

// Convert encodes req.InputPath into req.OutputPath. The output path only
// appears once the pyramid is complete.
func (c *Converter) Convert(req contracts.ConversionRequest) (svs_encoder.Summary, error) {
	var summary svs_encoder.Summary

	if err := files_manager.CheckProvidedPaths(req.InputPath, req.OutputPath); err != nil {
		return summary, err
	}

	startTime := time.Now()
	img, err := image_source.Load(req.InputPath, image_source.LoadOptions{
		Backend:   c.opts.Backend,
		BaseWidth: req.BaseWidth,
	})
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	if closer, ok := img.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	c.logger.Info("input loaded",
		"input", req.InputPath,
		"width", img.Width(),
		"height", img.Height(),
		"elapsed", time.Since(startTime),
	)

	mpp := c.mpp(req)
	md := contracts.SvsMetadata{MPP: &mpp, AppMag: &c.opts.AppMag}

	encoder := svs_encoder.New(c.opts.Open, svs_encoder.Options{
		TileSize: c.opts.TileSize,
		Workers:  c.opts.Workers,
		Logger:   c.logger,
		Progress: c.opts.Progress,
	})

	output := files_manager.NewAtomicOutput(req.OutputPath)
	summary, err = encoder.Encode(img, output.TmpPath, req.LayersFactors, md)
	if err != nil {
		output.Discard()
		return summary, err
	}
	if err := output.Commit(); err != nil {
		return summary, err
	}
	c.logger.Info("pyramid written",
		"output", req.OutputPath,
		"layers", len(summary.Layers),
		"elapsed", time.Since(startTime),
	)

	if req.ReportPath != "" {
		if err := c.writeReport(req, img, mpp, summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// mpp uses the physical resolution of the input when asked to, and falls
// back to 1000/base_width.
func (c *Converter) mpp(req contracts.ConversionRequest) float64 {
	if c.opts.MPPFromInput && !files_manager.IsVectorInput(req.InputPath) {
		var mpp float64
		res, width, err := utils.InputResolution(req.InputPath)
		if err == nil {
			mpp, err = utils.MPPForBaseWidth(res, width, req.BaseWidth)
		}
		if err == nil {
			return mpp
		}
		c.logger.Warn("input resolution unavailable, using default MPP",
			"input", req.InputPath,
			"error", err,
		)
	}
	return utils.DefaultMPP(req.BaseWidth)
}

func (c *Converter) writeReport(req contracts.ConversionRequest, img contracts.Image, mpp float64, summary svs_encoder.Summary) error {
	thumb, err := img.Resize(svs_encoder.ThumbnailScale(img.Width(), img.Height()))
	if err != nil {
		return fmt.Errorf("error preparing report thumbnail: %w", err)
	}
	if closer, ok := thumb.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	rgba, err := image_source.ToRGBA(thumb)
	if err != nil {
		return fmt.Errorf("error preparing report thumbnail: %w", err)
	}

	err = report.Write(req.ReportPath, report.Report{
		Input:     req.InputPath,
		Output:    req.OutputPath,
		MPP:       mpp,
		AppMag:    c.opts.AppMag,
		Thumbnail: rgba,
		Layers:    summary.Layers,
	})
	if err != nil {
		return err
	}
	c.logger.Info("report written", "report", req.ReportPath)
	return nil
}

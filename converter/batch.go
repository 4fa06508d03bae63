package converter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"svg2svs/contracts"
	"svg2svs/files_manager"
)

// BatchResult is the outcome of one input of a batch.
type BatchResult struct {
	InputPath  string
	OutputPath string
	Err        error
}

// ConvertDir converts every supported file of inputDir into outputDir, at
// most maxConversions at a time. Output names are resolved up front so no
// two inputs share an output (see files_manager.OutputPaths). Reports, when
// reportDir is set, are written as <output name>.pdf. Results follow the
// order of the inputs.
func (c *Converter) ConvertDir(inputDir, outputDir, reportDir string, baseWidth int, factors []float64, maxConversions int) ([]BatchResult, error) {
	inputs, totalSize, err := files_manager.GetInputPaths(inputDir)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no supported files found in %s", inputDir)
	}
	outputs, err := files_manager.OutputPaths(inputs, outputDir)
	if err != nil {
		return nil, err
	}
	c.logger.Info("starting batch", "inputs", len(inputs), "bytes", totalSize)

	maxConversions = max(maxConversions, 1)
	sem := make(chan struct{}, maxConversions)
	results := make([]BatchResult, len(inputs))

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input string) {
			defer wg.Done()

			sem <- struct{}{}        // acquire
			defer func() { <-sem }() // release

			req := contracts.ConversionRequest{
				InputPath:     input,
				OutputPath:    outputs[i],
				BaseWidth:     baseWidth,
				LayersFactors: factors,
			}
			if reportDir != "" {
				name := strings.TrimSuffix(filepath.Base(outputs[i]), ".svs")
				req.ReportPath = filepath.Join(reportDir, name+".pdf")
			}

			_, err := c.Convert(req)
			if err != nil {
				c.logger.Error("conversion failed", "input", input, "error", err)
			}
			results[i] = BatchResult{InputPath: input, OutputPath: req.OutputPath, Err: err}
		}(i, input)
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.InputPath, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

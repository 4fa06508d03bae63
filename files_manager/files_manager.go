package files_manager

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var vectorExtensions = []string{".svg", ".svgz"}

var rasterExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".gif", ".bmp", ".webp"}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func IsVectorInput(path string) bool {
	return slices.Contains(vectorExtensions, extension(path))
}

func IsSupportedInput(path string) bool {
	ext := extension(path)
	return slices.Contains(vectorExtensions, ext) || slices.Contains(rasterExtensions, ext)
}

// CheckProvidedPaths validates an input file and an output file path before
// any decoding starts.
func CheckProvidedPaths(inputPath string, outputPath string) error {
	if inputPath == "" || outputPath == "" {
		return fmt.Errorf("input and output paths required")
	}

	if stat, err := os.Stat(inputPath); err != nil || !stat.Mode().IsRegular() {
		return fmt.Errorf("input file %s does not exist or is not a regular file", inputPath)
	}
	if !IsSupportedInput(inputPath) {
		return fmt.Errorf("unsupported input format: %s", filepath.Ext(inputPath))
	}

	if stat, err := os.Stat(filepath.Dir(outputPath)); err != nil || !stat.IsDir() {
		return fmt.Errorf("output directory %s does not exist", filepath.Dir(outputPath))
	}
	if stat, err := os.Stat(outputPath); err == nil && stat.IsDir() {
		return fmt.Errorf("output path %s is a directory", outputPath)
	}

	absIn, _ := filepath.Abs(inputPath)
	absOut, _ := filepath.Abs(outputPath)
	if absIn == absOut {
		return fmt.Errorf("input and output paths must be different")
	}
	return nil
}

// GetInputPaths lists the supported inputs directly inside dir, skipping
// AppleDouble "._" files.
func GetInputPaths(dir string) ([]string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	inputs := make([]string, 0, len(entries))
	var size int64 = 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "._") {
			continue
		}
		if !IsSupportedInput(entry.Name()) {
			continue
		}
		inputs = append(inputs, filepath.Join(dir, entry.Name()))
		if info, err := entry.Info(); err == nil {
			size += info.Size()
		}
	}
	return inputs, size, nil
}

// OutputPathFor maps an input file to "<outputDir>/<name>.svs".
func OutputPathFor(inputPath string, outputDir string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, name+".svs")
}

// OutputPaths maps every input of a batch to its own output. Inputs whose
// names differ only by extension (slide.png, slide.svg) keep the extension
// in the output name: slide.png.svs, slide.svg.svs. Names are compared
// case-insensitively.
func OutputPaths(inputs []string, outputDir string) ([]string, error) {
	stems := make(map[string]int, len(inputs))
	for _, input := range inputs {
		stems[outputKey(OutputPathFor(input, outputDir))]++
	}

	outputs := make([]string, len(inputs))
	owners := make(map[string]string, len(inputs))
	for i, input := range inputs {
		out := OutputPathFor(input, outputDir)
		if stems[outputKey(out)] > 1 {
			out = filepath.Join(outputDir, filepath.Base(input)+".svs")
		}
		key := outputKey(out)
		if other, ok := owners[key]; ok {
			return nil, fmt.Errorf("%s and %s map to the same output %s", other, input, out)
		}
		owners[key] = input
		outputs[i] = out
	}
	return outputs, nil
}

func outputKey(path string) string {
	return strings.ToLower(path)
}

package contracts

// ConversionRequest describes one input to be turned into a pyramid.
type ConversionRequest struct {
	InputPath     string
	OutputPath    string
	ReportPath    string // optional
	BaseWidth     int
	LayersFactors []float64
}

package indicators

// IndicatorConfig holds configuration common to all indicators.
type IndicatorConfig struct {
	Period int // Number of bars the indicator looks back over
}

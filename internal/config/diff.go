package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-applied to a running engine are tracked individually;
// anything else folds into RequiresRestart.
type ConfigDiff struct {
	VADEnabledChanged        bool
	BaseThresholdChanged     bool
	SensitivityChanged       bool
	MinSpeechDurationChanged bool
	SilenceTimeoutChanged    bool
	DuckingFactorChanged     bool
	FadeDurationChanged      bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RequiresRestart is true when a field that cannot be hot-applied
	// (capture or playback wiring, VAD smoothing/history, listen address)
	// changed.
	RequiresRestart bool
}

// Any reports whether anything hot-applicable changed.
func (d ConfigDiff) Any() bool {
	return d.VADEnabledChanged ||
		d.BaseThresholdChanged ||
		d.SensitivityChanged ||
		d.MinSpeechDurationChanged ||
		d.SilenceTimeoutChanged ||
		d.DuckingFactorChanged ||
		d.FadeDurationChanged ||
		d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.VAD.Enabled != new.VAD.Enabled {
		d.VADEnabledChanged = true
	}
	if old.VAD.BaseThreshold != new.VAD.BaseThreshold {
		d.BaseThresholdChanged = true
	}
	if old.VAD.Sensitivity != new.VAD.Sensitivity {
		d.SensitivityChanged = true
	}
	if old.VAD.MinSpeechDurationMs != new.VAD.MinSpeechDurationMs {
		d.MinSpeechDurationChanged = true
	}
	if old.VAD.SilenceTimeoutMs != new.VAD.SilenceTimeoutMs {
		d.SilenceTimeoutChanged = true
	}
	if old.Ducking.Factor != new.Ducking.Factor {
		d.DuckingFactorChanged = true
	}
	if old.Ducking.FadeDurationMs != new.Ducking.FadeDurationMs {
		d.FadeDurationChanged = true
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Capture != new.Capture ||
		old.Playback != new.Playback ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		old.VAD.SmoothingFactor != new.VAD.SmoothingFactor ||
		old.VAD.HistorySize != new.VAD.HistorySize ||
		old.Ducking.RampSteps != new.Ducking.RampSteps {
		d.RequiresRestart = true
	}

	return d
}

package config

// Config holds the runtime settings of the FSM engine. Zero values are
// not meaningful on their own; start from DefaultConfig and overlay a
// file and environment overrides.
type Config struct {
	Logging         LoggingConfig      `yaml:"logging" json:"logging"`
	EventLogging    EventLoggingConfig `yaml:"event_logging" json:"event_logging"`
	UseTransactions bool               `yaml:"use_transactions" json:"use_transactions"`
	Verbs           VerbsConfig        `yaml:"verbs" json:"verbs"`
	Debug           bool               `yaml:"debug" json:"debug"`
}

// LoggingConfig controls the per-attempt transition log.
type LoggingConfig struct {
	// Enabled turns transition logging on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// LogFailures additionally records failed attempts.
	LogFailures bool `yaml:"log_failures" json:"log_failures"`

	// Structured selects key/value log records; otherwise records are
	// flattened to single lines.
	Structured bool `yaml:"structured" json:"structured"`

	// Channel names the log channel/component label. Empty means the
	// package default.
	Channel string `yaml:"channel" json:"channel"`

	// ExcludedContextProperties lists dotted paths removed from
	// context snapshots before they are persisted. A trailing ".*"
	// removes all children of the path.
	ExcludedContextProperties []string `yaml:"excluded_context_properties" json:"excluded_context_properties"`

	// ExceptionCharacterLimit truncates recorded exception details.
	ExceptionCharacterLimit int `yaml:"exception_character_limit" json:"exception_character_limit"`
}

// EventLoggingConfig controls the append-only success event log.
type EventLoggingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// VerbsConfig controls which lifecycle events are dispatched and how
// subjects are attributed.
type VerbsConfig struct {
	// DispatchTransitionedVerb controls the StateTransitioned event.
	DispatchTransitionedVerb bool `yaml:"dispatch_transitioned_verb" json:"dispatch_transitioned_verb"`

	// LogUserSubject attributes transition log entries to the acting
	// subject when one can be resolved.
	LogUserSubject bool `yaml:"log_user_subject" json:"log_user_subject"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Enabled:                 true,
			LogFailures:             true,
			Structured:              false,
			ExceptionCharacterLimit: 65535,
		},
		EventLogging:    EventLoggingConfig{Enabled: true},
		UseTransactions: true,
		Verbs: VerbsConfig{
			DispatchTransitionedVerb: true,
			LogUserSubject:           false,
		},
		Debug: false,
	}
}

// Validate checks the configuration against the engine's constraints.
func (c *Config) Validate() error {
	return Validate(c,
		RangeValidator("Logging.ExceptionCharacterLimit", 1, 1<<24),
		ExclusionPatterns("Logging.ExcludedContextProperties"),
	)
}

package extension

// Config holds the tierledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tierledger" or "tierledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableKeeper prevents the distribution keeper from running.
	DisableKeeper bool `json:"disable_keeper" mapstructure:"disable_keeper" yaml:"disable_keeper"`

	// KeeperSpec is the six-field cron spec for distribution ticks
	// (default: every minute).
	KeeperSpec string `json:"keeper_spec" mapstructure:"keeper_spec" yaml:"keeper_spec"`

	// BasePath is the URL prefix for the HTTP API (default: "/tierledger").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// OperatorToken gates admin routes of the HTTP API.
	OperatorToken string `json:"operator_token" mapstructure:"operator_token" yaml:"operator_token"`

	// CustodyAccount holds deposits and the undistributed pool.
	CustodyAccount string `json:"custody_account" mapstructure:"custody_account" yaml:"custody_account"`

	// SinkAccount receives the non-recipient part of each payout.
	SinkAccount string `json:"sink_account" mapstructure:"sink_account" yaml:"sink_account"`

	// TokenDecimals is used to render amounts in logs (default: 18).
	TokenDecimals int32 `json:"token_decimals" mapstructure:"token_decimals" yaml:"token_decimals"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/tierledger",
		TokenDecimals: 18,
	}
}

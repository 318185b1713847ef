package config

// InstrumentationConfig toggles the helpers the runtime builds. Each enabled
// module produces spans that classify into one guance source type.
type InstrumentationConfig struct {
	HTTP           HTTPInstrumentationConfig      `yaml:"http"            json:"http"`
	GRPC           GRPCInstrumentationConfig      `yaml:"grpc"            json:"grpc"`
	SQL            SQLInstrumentationConfig       `yaml:"sql"             json:"sql"`
	Messaging      MessagingInstrumentationConfig `yaml:"messaging"       json:"messaging"`
	Worker         WorkerInstrumentationConfig    `yaml:"worker"          json:"worker"`
	RuntimeMetrics RuntimeMetricsConfig           `yaml:"runtime_metrics" json:"runtime_metrics"`
}

// HTTPInstrumentationConfig configures the server middleware (source_type "web").
type HTTPInstrumentationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// IgnoredRoutes are served without a span.
	IgnoredRoutes []string `yaml:"ignored_routes" json:"ignored_routes"`
}

// GRPCInstrumentationConfig configures the unary interceptors (source_type "web").
type GRPCInstrumentationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MetadataAllowlist names metadata keys copied onto rpc spans.
	MetadataAllowlist []string `yaml:"metadata_allowlist" json:"metadata_allowlist"`
}

// SQLInstrumentationConfig configures database/sql wrapping (source_type "db").
type SQLInstrumentationConfig struct {
	Enabled        bool `yaml:"enabled"         json:"enabled"`
	CollectQueries bool `yaml:"collect_queries" json:"collect_queries"`
	// System overrides the db.system value derived from the driver name.
	System string `yaml:"system" json:"system"`
	// TraceRows records a span per rows.Next call.
	TraceRows bool `yaml:"trace_rows" json:"trace_rows"`
}

// MessagingInstrumentationConfig configures producer and consumer helpers (source_type "message").
type MessagingInstrumentationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// WorkerInstrumentationConfig configures background job instrumentation (source_type "custom").
type WorkerInstrumentationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// RuntimeMetricsConfig toggles Go runtime metrics collection.
type RuntimeMetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

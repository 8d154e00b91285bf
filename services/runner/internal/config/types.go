package config

type Config struct {
	Database  DatabaseConfig
	Bus       BusConfig
	Artifacts ArtifactsConfig
	Pipeline  PipelineConfig
	HTTP      HTTPConfig
}

type DatabaseConfig struct {
	DSN     string
	Migrate bool
}

type BusConfig struct {
	URL string
}

type ArtifactsConfig struct {
	Bucket string
}

type PipelineConfig struct {
	// DefinitionPath points at a YAML pipeline definition. Empty means the
	// built-in satsuki pipeline.
	DefinitionPath string
	WorkRoot       string
}

type HTTPConfig struct {
	Port int
}

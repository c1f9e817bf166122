package config

// Config is the non-secret service configuration, read from YAML.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
	Database DatabaseConfig `json:"database"`
	Worker   WorkerConfig   `json:"worker"`
	Notion   NotionConfig   `json:"notion"`
	BigQuery BigQueryConfig `json:"bigquery"`
	GCS      GCSConfig      `json:"gcs"`

	// Secrets is read from the ejson file and the environment.
	Secrets Secrets `json:"-"`
}

type ServerConfig struct {
	Port            int    `json:"port" env:"PORT"`
	ShutdownTimeout string `json:"shutdownTimeout"`
}

type LogConfig struct {
	Level string `json:"level" env:"LOG_LEVEL"`
	// Format is "console" or "json".
	Format string `json:"format" env:"LOG_FORMAT"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `json:"driver" env:"DATABASE_DRIVER"`
}

type WorkerConfig struct {
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queueSize"`
	MaxRetries      int    `json:"maxRetries"`
	ReparseSchedule string `json:"reparseSchedule"`
}

type NotionConfig struct {
	Enabled    bool   `json:"enabled"`
	DatabaseID string `json:"databaseId" env:"NOTION_DATABASE_ID"`
}

type BigQueryConfig struct {
	Enabled   bool   `json:"enabled"`
	ProjectID string `json:"projectId" env:"GOOGLE_CLOUD_PROJECT"`
	Dataset   string `json:"dataset"`
	Table     string `json:"table"`
}

type GCSConfig struct {
	// ArchivePrefix is where event dumps are written, e.g. gs://bucket/dumps.
	ArchivePrefix string `json:"archivePrefix"`
}

// Secrets holds credentials. Devices come from the ejson file only.
type Secrets struct {
	DatabaseURL string         `json:"databaseUrl" env:"DATABASE_URL"`
	NotionToken string         `json:"notionToken" env:"NOTION_TOKEN"`
	Devices     []DeviceSecret `json:"devices"`
}

// DeviceSecret registers an ingesting device and its API key.
type DeviceSecret struct {
	APIKey   string `json:"apiKey"`
	OwnerID  string `json:"ownerId"`
	DeviceID string `json:"deviceId"`
	Name     string `json:"name"`
}

// DeviceByKey returns the device registered under apiKey.
func (s Secrets) DeviceByKey(apiKey string) (DeviceSecret, bool) {
	for _, d := range s.Devices {
		if d.APIKey == apiKey {
			return d, true
		}
	}
	return DeviceSecret{}, false
}

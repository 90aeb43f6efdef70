package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/flagx"
	"github.com/fells-code/seamless-auth-go/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies
// on timex.Duration so JSON can specify the timeout either as a string
// like "30s" or as integer nanoseconds.
type JsonConfig struct {
	Host           string         `json:"host"`
	Mode           string         `json:"mode"`
	Credentials    string         `json:"credentials"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	DatabaseDSN    string         `json:"database_dsn"`
	StorageSecret  string         `json:"storage_secret"`
}

// parseJson overlays cfg with values from the JSON file named by the
// -c/-config flags. Absent file path means no overlay; zero-valued fields
// in the file leave the current value in place. Read or unmarshal errors
// panic, matching the fail-fast startup contract.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFileFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.Host != "" {
		cfg.Host = jc.Host
	}
	if jc.Mode != "" {
		cfg.Mode = api.Mode(jc.Mode)
	}
	if jc.Credentials != "" {
		cfg.Credentials = api.CredentialMode(jc.Credentials)
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.StorageSecret != "" {
		cfg.StorageSecret = jc.StorageSecret
	}
}

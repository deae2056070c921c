package config

import (
	"strings"
	"time"
)

const defaultAPIBaseURL = "http://localhost:8082"

// EnvVars holds the raw environment values. The API URL has three accepted
// names; the first non-empty one wins.
type EnvVars struct {
	StoreAPIURL    string        `env:"STORE_API_URL"`
	APIBaseURL     string        `env:"API_BASE_URL"`
	APIURL         string        `env:"API_URL"`
	AppName        string        `env:"APP_NAME" envDefault:"Storefront"`
	DataFolder     string        `env:"FOLDER" envDefault:"./data"`
	Env            string        `env:"ENV" envDefault:"DEV"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAPIBaseURL() string {
	for _, candidate := range []string{e.StoreAPIURL, e.APIBaseURL, e.APIURL} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimRight(candidate, "/")
		}
	}
	return defaultAPIBaseURL
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

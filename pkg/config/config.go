package config

import (
	"os"
)

type EnvVarName string // should be caps with underscore

const (
	sentryURL    EnvVarName = "SISYPHUS_SENTRY_URL"
	rocketAPIURL EnvVarName = "SISYPHUS_ROCKET_API_URL"
	githubToken  EnvVarName = "GITHUB_TOKEN"
)

type ConstantsConfig struct{}

func NewConstants() *ConstantsConfig {
	return &ConstantsConfig{}
}

func (c ConstantsConfig) GetSentryURL() string {
	return getEnvOrDefault(sentryURL, "")
}

func (c ConstantsConfig) GetRocketAPIURL() string {
	return getEnvOrDefault(rocketAPIURL, "https://rocket.anaconda.com/api/v1")
}

// GetGithubToken returns the token used to talk to rocket-platform when none
// is passed on the command line.
func (c ConstantsConfig) GetGithubToken() string {
	return getEnvOrDefault(githubToken, "")
}

func getEnvOrDefault(envVarName EnvVarName, defaultVal string) string {
	val := os.Getenv(string(envVarName))
	if val == "" {
		return defaultVal
	}
	return val
}

var GlobalConfig = NewConstants()

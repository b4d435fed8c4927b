package featureflag

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/anaconda/sisyphus/pkg/cmd/version"
)

func IsDev() bool {
	if viper.IsSet("feature.dev") {
		return viper.GetBool("feature.dev")
	}
	return strings.HasPrefix(version.Version, "dev")
}

func LoadFeatureFlags(path string) error {
	viper.SetConfigName("config")
	viper.AddConfigPath("/etc/sisyphus/")
	viper.AddConfigPath(path)
	viper.SetEnvPrefix("sisyphus")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig() // do not need to fail if can't find config file

	return nil
}

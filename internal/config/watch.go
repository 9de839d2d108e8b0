package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"tradeflow/internal/logger"
)

// WatchLogLevel re-reads the config file on change and applies app.log_level
// without a restart. Only the log level is hot-reloaded; everything else
// needs a restart to re-wire the jobs.
func WatchLogLevel(path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		level := v.GetString("app.log_level")
		if level == "" {
			return
		}
		logger.SetLevel(level)
		logger.Infof("config: log level now %s", level)
	})
	v.WatchConfig()
	return nil
}

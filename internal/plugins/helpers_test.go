package plugins

import "github.com/masterphooey/tater/internal/config"

func testPluginsConfig() config.PluginsConfig {
	return config.PluginsConfig{
		AutomaticURL: "http://sd.example.test:7860",
	}
}

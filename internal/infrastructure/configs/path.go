package configs

import (
	"flag"
	"log"
	"os"

	"github.com/hilthontt/haven/internal/infrastructure/env"
)

func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("HAVEN_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"./configs/config.yaml",
			"../../config.yaml",
			"/etc/haven/config.yaml",
			"/app/config.yaml", // common in Docker
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	if configPath == "" {
		log.Println("config file not found, using defaults and environment. Use --config or HAVEN_CONFIG env")
	}

	return configPath
}

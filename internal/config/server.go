package config

import "strings"

type ServerConfig struct {
	HTTPAddr    string
	CORSOrigins []string
	Debug       bool
}

func loadServer() ServerConfig {
	var origins []string
	for _, o := range strings.Split(getenv("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return ServerConfig{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		CORSOrigins: origins,
		Debug:       boolenv("GIN_DEBUG", false),
	}
}

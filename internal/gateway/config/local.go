package config

import "strings"

// applyLocalDefaults fills settings that only make sense on a developer
// machine running the compose stack.
func applyLocalDefaults(cfg *Config) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Env), "local") {
		return
	}
	if strings.TrimSpace(cfg.Artifact.Backend) == "" {
		cfg.Artifact.Backend = ArtifactBackendMemory
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Artifact.Backend), ArtifactBackendS3) {
		cfg.Artifact.Endpoint = firstNonEmpty(strings.TrimSpace(cfg.Artifact.Endpoint), "minio:9000")
		cfg.Artifact.UseSSL = false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package endpoints

import (
	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// DefraManager is nil when DefraDB runs outside folio.
	DefraManager *defra.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Book endpoints
		&CreateOriginalEndpoint{},
		&StartCleanupEndpoint{},
		&ListRevisionsEndpoint{},
		&CheckLayoutEndpoint{},

		// Revision endpoints
		&CreateRevisionEndpoint{},
		&GetRevisionEndpoint{},
		&GetRevisionTextEndpoint{},
		&ListChaptersEndpoint{},
		&ListFlagsEndpoint{},
		&ApproveEndpoint{},
		&AIReviseEndpoint{},

		// Review endpoints
		&ResolveFlagEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&ResumeJobEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for sync run identifiers.
	FieldRunID = "run_id"
	// FieldSubscriptionID is the standardized structured logging key for subscription identifiers.
	FieldSubscriptionID = "sub_id"
	// FieldBackend is the standardized structured logging key for search backend names.
	FieldBackend = "backend"
	// FieldShareURL is the standardized structured logging key for share links.
	FieldShareURL = "share_url"
	// FieldEndpoint is the standardized structured logging key for remote API endpoints.
	FieldEndpoint = "endpoint"
	// FieldSeason is the standardized structured logging key for season numbers.
	FieldSeason = "season"
	// FieldEpisode is the standardized structured logging key for episode numbers.
	FieldEpisode = "episode"
)

package spend

// APIKeyRecord is the outcome of an API-key lookup: either a valid tenant
// binding with its rate limit, or a rejection.
type APIKeyRecord struct {
	Valid     bool
	ProjectID string
	Limit     int
	Error     string
}

// APIKeyLookup is the sole source of tenancy and limits (spec §6): given
// an opaque bearer token, resolve the owning project and its budget.
// Implementations may hit a database, a config map, or a single static
// fallback key.
type APIKeyLookup interface {
	Lookup(apiKey string) (APIKeyRecord, error)
}

// StaticLookup implements APIKeyLookup against a fixed map, the shape spec
// §6 describes for "API-key lookup disabled": a single BRASS_SECRET_KEY
// bound to a fallback limit, or a small in-memory map for local
// development and tests.
type StaticLookup struct {
	keys map[string]APIKeyRecord
}

// NewStaticLookup builds a lookup table from project bindings keyed by raw
// API key.
func NewStaticLookup(bindings map[string]APIKeyRecord) *StaticLookup {
	return &StaticLookup{keys: bindings}
}

// NewSingleKeyLookup builds the fallback lookup spec §6 describes: one
// API key (BRASS_SECRET_KEY) bound to projectID with a fixed limit;
// cmd/brassd passes projectID "default".
func NewSingleKeyLookup(apiKey, projectID string, limit int) *StaticLookup {
	return &StaticLookup{
		keys: map[string]APIKeyRecord{
			apiKey: {Valid: true, ProjectID: projectID, Limit: limit},
		},
	}
}

func (l *StaticLookup) Lookup(apiKey string) (APIKeyRecord, error) {
	if rec, ok := l.keys[apiKey]; ok {
		return rec, nil
	}
	return APIKeyRecord{Valid: false, Error: "invalid_api_key"}, nil
}

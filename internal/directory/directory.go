package directory

import "context"

// Community is one community known to the directory for a state.
type Community struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory is the community directory port: it maps a state code to the set
// of communities to be onboarded.
type Directory interface {
	CommunitiesByState(ctx context.Context, stateCode string) ([]Community, error)
}

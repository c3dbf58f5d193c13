package directory

import (
	"context"

	"github.com/docslot/docslot/services/booking-service/internal/model"
)

// Resolver answers identity lookups that the local replica cannot. The
// production implementation talks to the directory service over gRPC; builds
// without generated proto code fall back to a disabled resolver.
type Resolver interface {
	Patient(ctx context.Context, userID string) (model.Patient, bool, error)
	Provider(ctx context.Context, providerID string) (model.Provider, bool, error)
}

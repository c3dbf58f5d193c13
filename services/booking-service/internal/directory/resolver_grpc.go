//go:build protogen

package directory

import (
	"context"
	"time"

	"github.com/docslot/docslot/libs/grpcx"
	directoryv1 "github.com/docslot/docslot/protos/gen/directory/v1"
	"github.com/docslot/docslot/services/booking-service/internal/model"
)

type grpcResolver struct {
	client directoryv1.DirectoryServiceClient
}

// NewResolver dials the directory service. An empty addr disables the
// resolver; callers then serve from the event-fed replica only.
func NewResolver(addr string) (Resolver, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcResolver{client: directoryv1.NewDirectoryServiceClient(conn)}, nil
}

func (r *grpcResolver) Patient(ctx context.Context, userID string) (model.Patient, bool, error) {
	resp, err := r.client.ResolvePatient(ctx, &directoryv1.ResolvePatientRequest{UserId: userID})
	if err != nil {
		return model.Patient{}, false, err
	}
	if !resp.GetFound() {
		return model.Patient{}, false, nil
	}
	return model.Patient{
		ID:     resp.GetPatientId(),
		UserID: resp.GetUserId(),
		Name:   resp.GetName(),
	}, true, nil
}

func (r *grpcResolver) Provider(ctx context.Context, providerID string) (model.Provider, bool, error) {
	resp, err := r.client.ResolveProvider(ctx, &directoryv1.ResolveProviderRequest{ProviderId: providerID})
	if err != nil {
		return model.Provider{}, false, err
	}
	if !resp.GetFound() {
		return model.Provider{}, false, nil
	}
	return model.Provider{
		ID:             resp.GetProviderId(),
		UserID:         resp.GetUserId(),
		Name:           resp.GetName(),
		Role:           resp.GetRole(),
		Speciality:     resp.GetSpeciality(),
		Experience:     resp.GetExperience(),
		AppointmentFee: resp.GetAppointmentFee(),
	}, true, nil
}

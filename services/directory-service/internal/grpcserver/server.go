//go:build protogen

package grpcserver

import (
	"context"

	directoryv1 "github.com/docslot/docslot/protos/gen/directory/v1"
	"github.com/docslot/docslot/services/directory-service/internal/storage"
	"google.golang.org/grpc"
)

type server struct {
	directoryv1.UnimplementedDirectoryServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	directoryv1.RegisterDirectoryServiceServer(grpcServer, &server{repo: repo})
}

// ResolvePatient maps an account id to the patient record. A miss is not an
// error; callers fall back to their own replica or reject the request.
func (s *server) ResolvePatient(ctx context.Context, req *directoryv1.ResolvePatientRequest) (*directoryv1.ResolvePatientResponse, error) {
	if req.GetUserId() == "" {
		return &directoryv1.ResolvePatientResponse{Found: false}, nil
	}
	p, err := s.repo.GetPatientByUserID(ctx, req.GetUserId())
	if err != nil {
		if storage.IsNotFound(err) {
			return &directoryv1.ResolvePatientResponse{Found: false}, nil
		}
		return nil, err
	}
	return &directoryv1.ResolvePatientResponse{
		PatientId: p.ID,
		UserId:    p.UserID,
		Name:      p.Name,
		Found:     true,
	}, nil
}

func (s *server) ResolveProvider(ctx context.Context, req *directoryv1.ResolveProviderRequest) (*directoryv1.ResolveProviderResponse, error) {
	if req.GetProviderId() == "" {
		return &directoryv1.ResolveProviderResponse{Found: false}, nil
	}
	p, err := s.repo.GetProvider(ctx, req.GetProviderId())
	if err != nil {
		if storage.IsNotFound(err) {
			return &directoryv1.ResolveProviderResponse{Found: false}, nil
		}
		return nil, err
	}
	// Only provider registrations land in this table, so the linked account
	// role is always "provider".
	return &directoryv1.ResolveProviderResponse{
		ProviderId:     p.ID,
		UserId:         p.UserID,
		Name:           p.Name,
		Speciality:     p.Speciality,
		Experience:     p.Experience,
		AppointmentFee: p.AppointmentFee,
		Role:           "provider",
		Found:          true,
	}, nil
}

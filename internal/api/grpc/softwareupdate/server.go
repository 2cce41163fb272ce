package softwareupdate

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/service/orchestrator"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Check(ctx context.Context, targets []string, force bool) (*update.CheckReport, error)
	Update(ctx context.Context, actor *update.Actor, targets []string, force bool) (*update.Plan, error)
	InProgress() bool
}

// Server implements the SoftwareUpdate gRPC API.
type Server struct {
	// service provides the business logic for check and update operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Check resolves the versions of the requested targets.
func (s *Server) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	request, err := decodeRequest(req)
	if err != nil {
		return nil, err
	}

	report, err := s.service.Check(ctx, request.Targets, request.Force)
	if err != nil {
		return nil, toStatus(err)
	}

	return encodeResponse(NewCheckResponse(report))
}

// Update starts an update run and returns its plan.
func (s *Server) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	request, err := decodeRequest(req)
	if err != nil {
		return nil, err
	}

	plan, err := s.service.Update(ctx, request.Actor.ToDomain(), request.Targets, request.Force)
	if err != nil {
		return nil, toStatus(err)
	}

	return encodeResponse(&UpdateResponse{
		Order: plan.Order,
		Names: plan.Names,
	})
}

// Status reports whether an update run is active.
func (s *Server) Status(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encodeResponse(&StatusResponse{InProgress: s.service.InProgress()})
}

func decodeRequest(req *structpb.Struct) (*Request, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	request := new(Request)
	if err := Decode(req, request); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	return request, nil
}

func encodeResponse(v any) (*structpb.Struct, error) {
	doc, err := Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode response")
	}

	return doc, nil
}

// toStatus separates client-correctable errors from execution errors.
func toStatus(err error) error {
	switch {
	case update.IsConfigurationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, update.ErrJobActive), errors.Is(err, orchestrator.ErrUpdateInProgress):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

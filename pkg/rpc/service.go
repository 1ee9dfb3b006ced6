// Package rpc exposes dashboard sessions over gRPC.
//
// The service is rewardboard.v1.Dashboard. Its messages are protobuf
// well-known types: session ids travel as StringValue and composed view
// models as Struct (the same JSON shape served by /api/view).
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/HatiCode/rewardboard/pkg/session"
	"github.com/HatiCode/rewardboard/pkg/storage"
	"github.com/HatiCode/rewardboard/pkg/view"
)

// Service implements DashboardServer on a session registry.
type Service struct {
	sessions *session.Registry
	logger   *slog.Logger
}

// NewService creates a service backed by sessions.
func NewService(sessions *session.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sessions: sessions, logger: logger}
}

// OpenSession mounts a new view and returns its session id.
func (s *Service) OpenSession(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	id, _, err := s.sessions.Open()
	if err != nil {
		if errors.Is(err, session.ErrRegistryClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "open session: %v", err)
	}
	return wrapperspb.String(id), nil
}

// GetView returns the composed view of a session.
func (s *Service) GetView(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	v, err := s.lookup(req.GetValue())
	if err != nil {
		return nil, err
	}
	return modelStruct(v.Model(ctx))
}

// ToggleRun flips one run's selection. Request fields: session, run.
func (s *Service) ToggleRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	run := fields["run"].GetStringValue()
	if run == "" {
		return nil, status.Error(codes.InvalidArgument, "run is required")
	}
	if err := storage.ValidateRun(run); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	v, err := s.lookup(fields["session"].GetStringValue())
	if err != nil {
		return nil, err
	}
	if _, err := v.Toggle(run); err != nil {
		return nil, viewError(err)
	}
	return modelStruct(v.Model(ctx))
}

// SetShowAll sets the table display gate. Request fields: session, show_all.
func (s *Service) SetShowAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	show, ok := fields["show_all"].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "show_all must be a boolean")
	}
	v, err := s.lookup(fields["session"].GetStringValue())
	if err != nil {
		return nil, err
	}
	if err := v.SetShowAll(show.BoolValue); err != nil {
		return nil, viewError(err)
	}
	return modelStruct(v.Model(ctx))
}

// CloseSession tears a session down.
func (s *Service) CloseSession(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "session is required")
	}
	if err := s.sessions.CloseSession(req.GetValue()); err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// WatchView streams the composed view: once immediately, then after every
// state change, until the client goes away or the session closes.
func (s *Service) WatchView(req *wrapperspb.StringValue, stream Dashboard_WatchViewServer) error {
	id := req.GetValue()
	v, err := s.lookup(id)
	if err != nil {
		return err
	}

	changes, unsubscribe := v.Subscribe()
	defer unsubscribe()

	ctx := stream.Context()
	send := func() error {
		msg, err := modelStruct(v.Model(ctx))
		if err != nil {
			return err
		}
		s.sessions.Touch(id)
		return stream.Send(msg)
	}

	if err := send(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return status.Error(codes.Aborted, "session closed")
			}
			if err := send(); err != nil {
				return err
			}
		}
	}
}

func (s *Service) lookup(id string) (*view.View, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "session is required")
	}
	v, err := s.sessions.Get(id)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return v, nil
}

func viewError(err error) error {
	if errors.Is(err, view.ErrClosed) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.InvalidArgument, err.Error())
}

// modelStruct converts a model through its JSON form so gRPC clients see the
// same field names as HTTP clients.
func modelStruct(m view.Model) (*structpb.Struct, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode view: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode view: %v", err)
	}
	return out, nil
}

// ModelFromStruct decodes a view model received from the service.
func ModelFromStruct(st *structpb.Struct) (view.Model, error) {
	var m view.Model
	raw, err := protojson.Marshal(st)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(raw, &m)
	return m, err
}

package softwareupdate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/service/orchestrator"
)

// fakeService implements Service for unit testing the transport.
type fakeService struct {
	report     *update.CheckReport
	plan       *update.Plan
	err        error
	inProgress bool

	gotTargets []string
	gotForce   bool
	gotActor   *update.Actor
}

func (f *fakeService) Check(_ context.Context, targets []string, force bool) (*update.CheckReport, error) {
	f.gotTargets, f.gotForce = targets, force

	return f.report, f.err
}

func (f *fakeService) Update(
	_ context.Context,
	actor *update.Actor,
	targets []string,
	force bool,
) (*update.Plan, error) {
	f.gotActor, f.gotTargets, f.gotForce = actor, targets, force

	return f.plan, f.err
}

func (f *fakeService) InProgress() bool { return f.inProgress }

// dial serves svc over an in-memory listener and returns a connected client.
func dial(t *testing.T, svc Service) SoftwareUpdateClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer()
	RegisterSoftwareUpdateServer(srv, NewServer(svc))

	go func() {
		_ = srv.Serve(lis)
	}()

	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return NewSoftwareUpdateClient(conn)
}

func TestServer_Check(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		report: &update.CheckReport{
			Status: "updatePossible",
			Targets: map[string]update.TargetStatus{
				"host": {
					DisplayName:    "Host",
					DisplayVersion: "1.0.0",
					Info: update.VersionInfo{
						Information: update.Information{
							Local:  update.VersionName{Name: "1.0.0", Value: "1.0.0"},
							Remote: update.VersionName{Name: "1.1.0", Value: "1.1.0"},
						},
						UpdateAvailable: true,
						UpdatePossible:  true,
					},
				},
				"broken": {
					DisplayName: "broken",
					Info: update.VersionInfo{
						Information: update.Information{}.WithDefaults(),
					},
					Err: errors.New("boom"),
				},
			},
		},
	}

	client := dial(t, svc)

	req, err := Encode(&Request{Targets: []string{"host", "broken"}, Force: true})
	require.NoError(t, err)

	doc, err := client.Check(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, []string{"host", "broken"}, svc.gotTargets)
	require.True(t, svc.gotForce)

	resp := new(CheckResponse)
	require.NoError(t, Decode(doc, resp))

	require.Equal(t, "updatePossible", resp.Status)
	require.Len(t, resp.Information, 2)

	host := resp.Information["host"]
	require.True(t, host.UpdateAvailable)
	require.True(t, host.UpdatePossible)
	require.Equal(t, "1.1.0", host.Information.Remote.Value)
	require.Equal(t, "Host", host.DisplayName)
	require.Empty(t, host.Error)

	broken := resp.Information["broken"]
	require.False(t, broken.UpdatePossible)
	require.Equal(t, update.UnknownVersion, broken.Information.Local.Name)
	require.Equal(t, "boom", broken.Error)

	report := resp.ToDomain()
	require.EqualError(t, report.Targets["broken"].Err, "boom")
	require.Equal(t, svc.report.Targets["host"].Info, report.Targets["host"].Info)
}

func TestServer_Update(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		plan: &update.Plan{
			Order: []string{"host", "plugin"},
			Names: map[string]string{"host": "Host", "plugin": "Plugin"},
		},
	}

	client := dial(t, svc)

	req, err := Encode(&Request{
		Targets: []string{"plugin"},
		Actor:   &Actor{Hostname: "box", Username: "operator"},
	})
	require.NoError(t, err)

	doc, err := client.Update(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, &update.Actor{Hostname: "box", Username: "operator"}, svc.gotActor)
	require.Equal(t, []string{"plugin"}, svc.gotTargets)
	require.False(t, svc.gotForce)

	resp := new(UpdateResponse)
	require.NoError(t, Decode(doc, resp))
	require.Equal(t, svc.plan.Order, resp.Order)
	require.Equal(t, svc.plan.Names, resp.Names)
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	client := dial(t, &fakeService{inProgress: true})

	doc, err := client.Status(context.Background(), new(structpb.Struct))
	require.NoError(t, err)

	resp := new(StatusResponse)
	require.NoError(t, Decode(doc, resp))
	require.True(t, resp.InProgress)
}

func TestServer_ErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"configuration", fmt.Errorf("decode: %w", update.ErrConfigurationInvalid), codes.InvalidArgument},
		{"unknown check", update.ErrUnknownCheckType, codes.InvalidArgument},
		{"job active", fmt.Errorf("printer: %w", update.ErrJobActive), codes.FailedPrecondition},
		{"in progress", orchestrator.ErrUpdateInProgress, codes.FailedPrecondition},
		{"execution", errors.New("disk full"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer(&fakeService{err: tt.err})

			_, err := s.Update(context.Background(), new(structpb.Struct))
			require.Equal(t, tt.code, status.Code(err))

			_, err = s.Check(context.Background(), new(structpb.Struct))
			require.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestServer_RejectsMalformedRequest(t *testing.T) {
	t.Parallel()

	s := NewServer(new(fakeService))

	_, err := s.Check(context.Background(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err := structpb.NewStruct(map[string]any{"targets": "host"})
	require.NoError(t, err)

	_, err = s.Update(context.Background(), req)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

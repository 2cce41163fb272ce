//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/swupdate/internal/api/grpc/softwareupdate"
	"github.com/oshokin/swupdate/internal/config"
	"github.com/oshokin/swupdate/internal/domain/update"
)

// Client wraps the SoftwareUpdate gRPC client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the update server.
	conn *grpc.ClientConn
	// api is the SoftwareUpdate client stub.
	api api.SoftwareUpdateClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the update server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial update server: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         api.NewSoftwareUpdateClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Check asks the server for the versions of targets.
func (c *Client) Check(ctx context.Context, targets []string, force bool) (*update.CheckReport, error) {
	req, err := api.Encode(&api.Request{Targets: targets, Force: force})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	doc, err := c.api.Check(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	resp := new(api.CheckResponse)
	if err = api.Decode(doc, resp); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	return resp.ToDomain(), nil
}

// Update asks the server to start an update run.
func (c *Client) Update(
	ctx context.Context,
	actor *update.Actor,
	targets []string,
	force bool,
) (*update.Plan, error) {
	request := &api.Request{Targets: targets, Force: force}
	if actor != nil {
		request.Actor = &api.Actor{Hostname: actor.Hostname, Username: actor.Username}
	}

	req, err := api.Encode(request)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	doc, err := c.api.Update(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	resp := new(api.UpdateResponse)
	if err = api.Decode(doc, resp); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	return &update.Plan{Order: resp.Order, Names: resp.Names}, nil
}

// InProgress asks the server whether an update run is active.
func (c *Client) InProgress(ctx context.Context) (bool, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	doc, err := c.api.Status(callCtx, new(structpb.Struct))
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}

	resp := new(api.StatusResponse)
	if err = api.Decode(doc, resp); err != nil {
		return false, fmt.Errorf("status: %w", err)
	}

	return resp.InProgress, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

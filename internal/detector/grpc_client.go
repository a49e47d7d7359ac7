package detector

import (
	"context"
	"fmt"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-threatsim/internal/api"
	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

const opGRPC = "detector.grpc"

// GRPCClient submits batches to a detector speaking threatsim.v1.Detector.
type GRPCClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewGRPCClient dials address lazily; the first Submit establishes the connection.
func NewGRPCClient(address string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	if address == "" {
		return nil, utils.NewAppError(opGRPC, "address not configured", nil)
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(grpc_prometheus.UnaryClientInterceptor),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, utils.NewAppError(opGRPC, "create client", err)
	}
	return &GRPCClient{conn: conn, timeout: timeout}, nil
}

// Submit invokes Score and decodes a single assessment.
func (c *GRPCClient) Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
	if c == nil || c.conn == nil {
		return models.Assessment{}, utils.NewAppError(opGRPC, "client not initialised", nil)
	}
	if len(logs) == 0 {
		return models.Assessment{}, utils.NewAppError(opGRPC, "submit", ErrEmptyBatch)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, api.ScoreMethod, api.EventsToStruct(logs), resp); err != nil {
		// Status errors do not unwrap to the context error; surface the caller's.
		if ctxErr := ctx.Err(); ctxErr != nil {
			switch status.Code(err) {
			case codes.Canceled, codes.DeadlineExceeded:
				return models.Assessment{}, utils.NewAppError(opGRPC, "score request interrupted", ctxErr)
			}
		}
		return models.Assessment{}, utils.NewAppError(opGRPC, "score request failed", err)
	}

	assessment, err := api.StructToAssessment(resp)
	if err != nil {
		return models.Assessment{}, utils.NewAppError(opGRPC, "malformed response", err)
	}
	return assessment, nil
}

// Close releases the underlying connection.
func (c *GRPCClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close detector connection: %w", err)
	}
	return nil
}

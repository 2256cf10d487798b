package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/dietnavigator/nutrition-chat/internal/event"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Method names served by the agent-runtime bridge. Payloads are
// google.protobuf.Struct so the bridge can pass runtime dicts through as-is.
const (
	runtimeServiceName  = "agentruntime.v1.AgentRuntime"
	createSessionMethod = "/" + runtimeServiceName + "/CreateSession"
	streamQueryMethod   = "/" + runtimeServiceName + "/StreamQuery"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")

	streamQueryDesc = &grpc.StreamDesc{StreamName: "StreamQuery", ServerStreams: true}
)

// GrpcClient provides a gRPC client to an agent-runtime bridge.
type GrpcClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient creates a new gRPC client to the agent-runtime bridge.
// Extra dial options are appended after the defaults.
func NewGrpcClient(addr string, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultGrpcClientConfig()
	if addr != "" {
		cfg.Address = addr
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent runtime at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent runtime at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to agent runtime bridge", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// CreateSession asks the bridge to open a session for userID.
func (c *GrpcClient) CreateSession(ctx context.Context, userID string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"user_id": userID})
	if err != nil {
		return "", fmt.Errorf("build create session request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, createSessionMethod, req, resp); err != nil {
		return "", fmt.Errorf("create session failed: %w", err)
	}
	return resp.GetFields()["id"].GetStringValue(), nil
}

// StreamQuery sends a message and yields the streamed events.
func (c *GrpcClient) StreamQuery(ctx context.Context, q Query) iter.Seq2[event.Event, error] {
	return func(yield func(event.Event, error) bool) {
		msg, err := q.Message.payloadValue()
		if err != nil {
			yield(event.Event{}, err)
			return
		}
		req, err := structpb.NewStruct(map[string]any{
			"user_id":    q.UserID,
			"session_id": q.SessionID,
			"message":    msg,
		})
		if err != nil {
			yield(event.Event{}, fmt.Errorf("build stream query request: %w", err))
			return
		}

		c.logger.Debug("Streaming query via gRPC",
			"user_id", q.UserID,
			"session_id", q.SessionID,
			"multimodal", q.Message.IsMultimodal(),
		)

		stream, err := c.conn.NewStream(ctx, streamQueryDesc, streamQueryMethod)
		if err != nil {
			yield(event.Event{}, fmt.Errorf("stream query request failed: %w", err))
			return
		}
		if err := stream.SendMsg(req); err != nil {
			yield(event.Event{}, fmt.Errorf("send stream query: %w", err))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(event.Event{}, fmt.Errorf("close stream query send: %w", err))
			return
		}

		for {
			resp := &structpb.Struct{}
			err := stream.RecvMsg(resp)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(event.Event{}, fmt.Errorf("stream query error: %w", err))
				return
			}

			raw, err := protojson.Marshal(resp)
			if err != nil {
				c.logger.Warn("failed to render streamed event", "error", err)
				continue
			}
			if !yield(event.Decode(raw), nil) {
				return
			}
		}
	}
}

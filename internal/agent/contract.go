package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	serviceName         = "alexi.agent.v1.AgentService"
	jsonCodecName       = "json"
	methodReviewAnswer  = "/" + serviceName + "/ReviewAnswer"
	methodTrackProgress = "/" + serviceName + "/TrackProgress"
	reviewAnswerName    = "ReviewAnswer"
	trackProgressName   = "TrackProgress"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// AgentServer is the server side of the agent contract. The production agent
// is a separate service; the Go implementation exists for tests and local
// stubs.
type AgentServer interface {
	ReviewAnswer(ctx context.Context, in *AnswerReview) (*Review, error)
	TrackProgress(ctx context.Context, in *ProgressRequest) (*ProgressResult, error)
}

// RegisterAgentServer registers impl on server under the agent service name.
func RegisterAgentServer(server grpc.ServiceRegistrar, impl AgentServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AgentServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: reviewAnswerName,
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &AnswerReview{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return srv.(AgentServer).ReviewAnswer(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReviewAnswer}
					handler := func(ctx context.Context, req any) (any, error) {
						r, ok := req.(*AnswerReview)
						if !ok {
							return nil, fmt.Errorf("invalid request type %T", req)
						}
						return srv.(AgentServer).ReviewAnswer(ctx, r)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: trackProgressName,
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &ProgressRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return srv.(AgentServer).TrackProgress(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodTrackProgress}
					handler := func(ctx context.Context, req any) (any, error) {
						r, ok := req.(*ProgressRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type %T", req)
						}
						return srv.(AgentServer).TrackProgress(ctx, r)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Metadata: "alexi/agent/v1/agent.json",
	}, impl)
}

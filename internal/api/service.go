package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// DetectorServiceName is the fully-qualified gRPC service name.
	DetectorServiceName = "threatsim.v1.Detector"
	// ScoreMethod is the full method path of the unary scoring call.
	ScoreMethod = "/" + DetectorServiceName + "/Score"
)

// DetectorServer scores a batch of events carried as a google.protobuf.Struct
// of the form {"logs": [...]} and answers {"risk_score", "action", "top_features"}.
type DetectorServer interface {
	Score(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDetectorServer attaches srv to a gRPC service registrar.
func RegisterDetectorServer(s grpc.ServiceRegistrar, srv DetectorServer) {
	s.RegisterService(&detectorServiceDesc, srv)
}

var detectorServiceDesc = grpc.ServiceDesc{
	ServiceName: DetectorServiceName,
	HandlerType: (*DetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Score", Handler: scoreHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "threatsim/v1/detector.proto",
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectorServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ScoreMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectorServer).Score(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

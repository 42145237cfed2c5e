package publish

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/pf3d/internal/tracker"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pf3d.EstimateService"

const streamMethod = "/" + ServiceName + "/StreamEstimates"

// estimateService is implemented by Publisher.
type estimateService interface {
	StreamEstimates(req *structpb.Struct, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*estimateService)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEstimates",
			Handler:       streamEstimatesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pf3d/estimates",
}

func streamEstimatesHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(estimateService).StreamEstimates(req, stream)
}

// Dial opens a plaintext client connection to a publisher.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(addr, opts...)
}

// Subscription is a client-side estimate stream.
type Subscription struct {
	stream grpc.ClientStream
}

// Subscribe opens StreamEstimates on cc. With onlySeeing the server skips
// frames without a confident detection.
func Subscribe(ctx context.Context, cc grpc.ClientConnInterface, onlySeeing bool) (*Subscription, error) {
	desc := &serviceDesc.Streams[0]
	stream, err := cc.NewStream(ctx, desc, streamMethod)
	if err != nil {
		return nil, fmt.Errorf("open estimate stream: %w", err)
	}
	req, err := structpb.NewStruct(map[string]interface{}{"only_seeing": onlySeeing})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send subscribe request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close subscribe request: %w", err)
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next estimate.
func (s *Subscription) Recv() (tracker.Estimate, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return tracker.Estimate{}, err
	}
	return EstimateFromStruct(msg)
}

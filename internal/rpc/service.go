// Package rpc exposes the aggregated book over a server-streaming gRPC
// service. There is no .proto in this tree, so the service descriptor below
// is hand-written in the same shape protoc-gen-go-grpc emits, and the wire
// codec is the JSON codec in codec.go rather than generated protobuf
// marshaling.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const bookSummaryServiceName = "aggbook.BookSummaryService"

const BookSummaryService_StreamBookSummary_FullMethodName = "/" + bookSummaryServiceName + "/StreamBookSummary"

// Level is one row of a streamed summary.
type Level struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

// Summary is the message sent on every StreamBookSummary update.
type Summary struct {
	Spread float64 `json:"spread"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

// BookSummaryServiceServer is the server API for BookSummaryService.
type BookSummaryServiceServer interface {
	// StreamBookSummary streams the unified top-of-book summary to the
	// caller for as long as the stream stays open. The request carries no
	// fields: the server always streams its single symbol.
	StreamBookSummary(*emptypb.Empty, BookSummaryService_StreamBookSummaryServer) error
}

// BookSummaryService_StreamBookSummaryServer is the server-side stream
// handle passed to StreamBookSummary implementations.
type BookSummaryService_StreamBookSummaryServer interface {
	Send(*Summary) error
	grpc.ServerStream
}

type bookSummaryServiceStreamBookSummaryServer struct {
	grpc.ServerStream
}

func (s *bookSummaryServiceStreamBookSummaryServer) Send(m *Summary) error {
	return s.ServerStream.SendMsg(m)
}

func _BookSummaryService_StreamBookSummary_Handler(srv interface{}, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(BookSummaryServiceServer).StreamBookSummary(req, &bookSummaryServiceStreamBookSummaryServer{stream})
}

// BookSummaryService_ServiceDesc is the grpc.ServiceDesc for
// BookSummaryService. It's only intended for direct use with
// grpc.RegisterService, and not to be introspected or modified.
var BookSummaryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: bookSummaryServiceName,
	HandlerType: (*BookSummaryServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamBookSummary",
			Handler:       _BookSummaryService_StreamBookSummary_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "internal/rpc/service.go",
}

// RegisterBookSummaryServiceServer registers srv on s.
func RegisterBookSummaryServiceServer(s grpc.ServiceRegistrar, srv BookSummaryServiceServer) {
	s.RegisterService(&BookSummaryService_ServiceDesc, srv)
}

// BookSummaryServiceClient is the client API for BookSummaryService.
type BookSummaryServiceClient interface {
	StreamBookSummary(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (BookSummaryService_StreamBookSummaryClient, error)
}

type bookSummaryServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewBookSummaryServiceClient builds a client bound to cc. Callers must dial
// with grpc.WithDefaultCallOptions(grpc.ForceCodec(...)) using the same JSON
// codec the server has registered, since this service carries no protobuf
// descriptor for grpc's default codec to fall back on.
func NewBookSummaryServiceClient(cc grpc.ClientConnInterface) BookSummaryServiceClient {
	return &bookSummaryServiceClient{cc}
}

// BookSummaryService_StreamBookSummaryClient is the client-side stream
// handle returned by StreamBookSummary.
type BookSummaryService_StreamBookSummaryClient interface {
	Recv() (*Summary, error)
	grpc.ClientStream
}

func (c *bookSummaryServiceClient) StreamBookSummary(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (BookSummaryService_StreamBookSummaryClient, error) {
	stream, err := c.cc.NewStream(ctx, &BookSummaryService_ServiceDesc.Streams[0], BookSummaryService_StreamBookSummary_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &bookSummaryServiceStreamBookSummaryClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type bookSummaryServiceStreamBookSummaryClient struct {
	grpc.ClientStream
}

func (x *bookSummaryServiceStreamBookSummaryClient) Recv() (*Summary, error) {
	m := new(Summary)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

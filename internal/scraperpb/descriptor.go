package scraperpb

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// DescriptorSet builds a minimal FileDescriptorSet describing the
// ETCScraper service's RPC surface, for internal/reflection to serve over
// the DataChannel path (the fallback gRPC server registers grpc-go's
// standard reflection service instead). There is no
// compiled .proto backing the hand-written scraperpb types, so this stands
// in for the file a real `protoc` invocation would emit: it only needs to
// carry service/method/message names, since that's all ListServices and
// FileContainingSymbol inspect.
func DescriptorSet() *descriptorpb.FileDescriptorSet {
	pkg := "scraper"
	fileName := "scraper.proto"

	methods := []string{"Health", "Scrape", "ScrapeMultiple", "GetDownloadedFiles", "StreamDownload"}
	methodDescs := make([]*descriptorpb.MethodDescriptorProto, 0, len(methods))
	for _, m := range methods {
		name := m
		methodDescs = append(methodDescs, &descriptorpb.MethodDescriptorProto{Name: &name})
	}

	messages := []string{
		"HealthResponse", "AccountSpec", "ScrapeRequest", "ScrapeMultipleRequest",
		"ScrapeMultipleResponse", "AccountResultDTO", "GetDownloadedFilesRequest",
		"GetDownloadedFilesResponse", "StreamDownloadRequest", "FileChunk",
	}
	messageDescs := make([]*descriptorpb.DescriptorProto, 0, len(messages))
	for _, m := range messages {
		name := m
		messageDescs = append(messageDescs, &descriptorpb.DescriptorProto{Name: &name})
	}

	svcName := "ETCScraper"
	return &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			{
				Name:    proto.String(fileName),
				Package: &pkg,
				Service: []*descriptorpb.ServiceDescriptorProto{
					{Name: &svcName, Method: methodDescs},
				},
				MessageType: messageDescs,
			},
		},
	}
}

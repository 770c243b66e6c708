package reflection_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/nodeglow/rtcgateway/internal/codec"
	"github.com/nodeglow/rtcgateway/internal/reflection"
)

func testSet() *descriptorpb.FileDescriptorSet {
	pkg := "scraper"
	svcName := "ETCScraper"
	methodName := "Health"
	msgName := "HealthResponse"
	return &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			{
				Name:    proto.String("scraper.proto"),
				Package: &pkg,
				Service: []*descriptorpb.ServiceDescriptorProto{
					{
						Name: &svcName,
						Method: []*descriptorpb.MethodDescriptorProto{
							{Name: &methodName},
						},
					},
				},
				MessageType: []*descriptorpb.DescriptorProto{
					{Name: &msgName},
				},
			},
		},
	}
}

func TestListServices_IncludesDeclaredAndReflectionService(t *testing.T) {
	r := reflection.New(testSet())
	resp := r.ListServices()

	var foundScraper, foundReflection bool
	for _, s := range resp.Services {
		if s.Name == "scraper.ETCScraper" {
			foundScraper = true
		}
		if s.Name == "grpc.reflection.v1alpha.ServerReflection" {
			foundReflection = true
		}
	}
	if !foundScraper {
		t.Fatalf("expected scraper.ETCScraper in %+v", resp.Services)
	}
	if !foundReflection {
		t.Fatalf("expected reflection service in %+v", resp.Services)
	}
}

func TestFileContainingSymbol_ServiceFound(t *testing.T) {
	r := reflection.New(testSet())
	fd, err := r.FileContainingSymbol("scraper.ETCScraper")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := proto.Marshal(fd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var roundTripped descriptorpb.FileDescriptorProto
	if err := proto.Unmarshal(decoded, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	found := false
	for _, svc := range roundTripped.GetService() {
		if svc.GetName() == "ETCScraper" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ETCScraper in service list of decoded descriptor")
	}
}

func TestFileContainingSymbol_MissingIsNotFound(t *testing.T) {
	r := reflection.New(testSet())
	_, err := r.FileContainingSymbol("nope.DoesNotExist")
	if err == nil {
		t.Fatal("expected error")
	}
	var gerr *codec.GRPCError
	if !errors.As(err, &gerr) || gerr.Code != codec.StatusNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFileContainingSymbol_EmptyIsInvalidArgument(t *testing.T) {
	r := reflection.New(testSet())
	_, err := r.FileContainingSymbol("")
	if err == nil {
		t.Fatal("expected error")
	}
	var gerr *codec.GRPCError
	if !errors.As(err, &gerr) || gerr.Code != codec.StatusInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

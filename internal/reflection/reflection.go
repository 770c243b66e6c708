// Package reflection serves the two custom reflection RPCs the spec
// requires: ListServices and FileContainingSymbol. Full bidirectional
// ServerReflectionInfo is intentionally not implemented; callers that need
// it use the fallback gRPC server's standard reflection service instead.
package reflection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/nodeglow/rtcgateway/internal/codec"
	"github.com/nodeglow/rtcgateway/internal/transport"
)

// ListServicesPath and FileContainingSymbolPath are intercepted before the
// service bridge; both the v1 and v1alpha reflection service names are
// accepted since browsers in the wild use either.
const (
	ListServicesPathAlpha = "/grpc.reflection.v1alpha.ServerReflection/ListServices"
	ListServicesPathV1    = "/grpc.reflection.v1.ServerReflection/ListServices"

	FileContainingSymbolPathAlpha = "/grpc.reflection.v1alpha.ServerReflection/FileContainingSymbol"
	FileContainingSymbolPathV1    = "/grpc.reflection.v1.ServerReflection/FileContainingSymbol"

	reflectionServiceName = "grpc.reflection.v1alpha.ServerReflection"
)

// ServiceInfo is one entry in a ListServices response.
type ServiceInfo struct {
	Name    string   `json:"name"`
	Methods []string `json:"methods"`
}

// ListServicesResponse is the JSON body returned for ListServices.
type ListServicesResponse struct {
	Services []ServiceInfo `json:"services"`
}

// FileContainingSymbolRequest is the JSON body sent for FileContainingSymbol.
type FileContainingSymbolRequest struct {
	Symbol string `json:"symbol"`
}

// FileContainingSymbolResponse is the JSON body returned for
// FileContainingSymbol: a base64-encoded serialized FileDescriptorProto.
type FileContainingSymbolResponse struct {
	FileDescriptorProto string `json:"fileDescriptorProto"`
}

// Reflection answers reflection queries against a compile-time
// FileDescriptorSet.
type Reflection struct {
	set *descriptorpb.FileDescriptorSet
}

// New builds a Reflection responder over the given descriptor set.
func New(set *descriptorpb.FileDescriptorSet) *Reflection {
	return &Reflection{set: set}
}

// ListServices walks every file in the set and emits one entry per service,
// appending the reflection service itself if the set does not already
// declare it.
func (r *Reflection) ListServices() ListServicesResponse {
	var out ListServicesResponse
	seen := false
	for _, fd := range r.set.GetFile() {
		pkg := fd.GetPackage()
		for _, svc := range fd.GetService() {
			name := svc.GetName()
			full := name
			if pkg != "" {
				full = pkg + "." + name
			}
			if full == reflectionServiceName {
				seen = true
			}
			methods := make([]string, 0, len(svc.GetMethod()))
			for _, m := range svc.GetMethod() {
				methods = append(methods, m.GetName())
			}
			out.Services = append(out.Services, ServiceInfo{Name: full, Methods: methods})
		}
	}
	if !seen {
		out.Services = append(out.Services, ServiceInfo{Name: reflectionServiceName, Methods: []string{"ListServices", "FileContainingSymbol"}})
	}
	return out
}

// FileContainingSymbol searches services, methods, messages, and enums for
// the given fully-qualified symbol and returns the enclosing file.
func (r *Reflection) FileContainingSymbol(symbol string) (*descriptorpb.FileDescriptorProto, error) {
	if symbol == "" {
		return nil, &codec.GRPCError{Code: codec.StatusInvalidArgument, Message: "empty symbol"}
	}
	for _, fd := range r.set.GetFile() {
		if fileDeclares(fd, symbol) {
			return fd, nil
		}
	}
	return nil, &codec.GRPCError{Code: codec.StatusNotFound, Message: fmt.Sprintf("symbol not found: %s", symbol)}
}

func fileDeclares(fd *descriptorpb.FileDescriptorProto, symbol string) bool {
	pkg := fd.GetPackage()
	qualify := func(name string) string {
		if pkg == "" {
			return name
		}
		return pkg + "." + name
	}
	for _, svc := range fd.GetService() {
		svcName := qualify(svc.GetName())
		if svcName == symbol {
			return true
		}
		for _, m := range svc.GetMethod() {
			if svcName+"."+m.GetName() == symbol {
				return true
			}
		}
	}
	for _, msg := range fd.GetMessageType() {
		if qualify(msg.GetName()) == symbol {
			return true
		}
	}
	for _, en := range fd.GetEnumType() {
		if qualify(en.GetName()) == symbol {
			return true
		}
	}
	return false
}

// Register wires both reflection handlers onto a transport, ahead of any
// service bridge registration.
func Register(t *transport.Transport, r *Reflection) {
	t.RegisterHandler(ListServicesPathAlpha, r.listServicesHandler)
	t.RegisterHandler(ListServicesPathV1, r.listServicesHandler)
	t.RegisterHandler(FileContainingSymbolPathAlpha, r.fileContainingSymbolHandler)
	t.RegisterHandler(FileContainingSymbolPathV1, r.fileContainingSymbolHandler)
}

func (r *Reflection) listServicesHandler(ctx context.Context, req *codec.RequestEnvelope) (*codec.ResponseEnvelope, error) {
	body, err := json.Marshal(r.ListServices())
	if err != nil {
		return nil, &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
	}
	return reflectionResponse(req, body), nil
}

func (r *Reflection) fileContainingSymbolHandler(ctx context.Context, req *codec.RequestEnvelope) (*codec.ResponseEnvelope, error) {
	var in FileContainingSymbolRequest
	if len(req.Message) > 0 {
		if err := json.Unmarshal(req.Message, &in); err != nil {
			return nil, &codec.GRPCError{Code: codec.StatusInvalidArgument, Message: "malformed request: " + err.Error()}
		}
	}
	fd, err := r.FileContainingSymbol(strings.TrimSpace(in.Symbol))
	if err != nil {
		return nil, err
	}
	raw, err := proto.Marshal(fd)
	if err != nil {
		return nil, &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
	}
	body, err := json.Marshal(FileContainingSymbolResponse{FileDescriptorProto: base64.StdEncoding.EncodeToString(raw)})
	if err != nil {
		return nil, &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
	}
	return reflectionResponse(req, body), nil
}

func reflectionResponse(req *codec.RequestEnvelope, body []byte) *codec.ResponseEnvelope {
	requestID := req.Headers["x-request-id"]
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &codec.ResponseEnvelope{
		Headers:  map[string]string{"x-request-id": requestID},
		Messages: [][]byte{body},
		Trailers: map[string]string{"grpc-status": "0"},
	}
}

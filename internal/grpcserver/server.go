// Package grpcserver exposes the same ETCScraper handler stack used over
// WebRTC data channels (internal/scraper) as a conventional gRPC-over-HTTP/2
// service, for local clients that can reach the machine directly. See
// internal/scraper for the business logic; this
// package only adapts it to *grpc.Server's calling convention.
package grpcserver

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/nodeglow/rtcgateway/internal/codec"
	"github.com/nodeglow/rtcgateway/internal/logging"
	"github.com/nodeglow/rtcgateway/internal/scraper"
	"github.com/nodeglow/rtcgateway/internal/scraperpb"
	"github.com/nodeglow/rtcgateway/pkg/auth"
)

// Config parameterises the fallback server.
type Config struct {
	ListenAddr string
	AuthToken  string // optional static bearer token; "" means open
	JWTSecret  []byte // optional HMAC secret; takes precedence over AuthToken
	JWTIssuer  string
}

// Server is the fallback gRPC-over-HTTP/2 front door.
type Server struct {
	cfg      Config
	grpcSrv  *grpc.Server
	verifier *auth.Verifier
}

// New builds a Server wired to svc. Reflection is registered via the
// standard google.golang.org/grpc/reflection package, distinct from the
// DataChannel path's hand-rolled reflection (internal/reflection).
func New(cfg Config, svc *scraper.Service) *Server {
	var verifier *auth.Verifier
	if len(cfg.JWTSecret) > 0 {
		verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(authUnaryInterceptor(cfg, verifier), corsUnaryInterceptor()),
		grpc.ChainStreamInterceptor(authStreamInterceptor(cfg, verifier)),
	}

	grpcSrv := grpc.NewServer(opts...)
	grpcSrv.RegisterService(serviceDesc(), svc)
	reflection.Register(grpcSrv)

	return &Server{cfg: cfg, grpcSrv: grpcSrv, verifier: verifier}
}

// ListenAndServe blocks, serving until ctx is cancelled, then gracefully
// drains in-flight RPCs before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.grpcSrv.GracefulStop()
	}()

	logging.Logger().Sugar().Infow("fallback grpc server listening", "addr", ln.Addr().String())
	return s.grpcSrv.Serve(ln)
}

// checkAuth validates the incoming bearer token. A JWT verifier, when
// configured, takes precedence over the static shared-secret comparison.
func checkAuth(ctx context.Context, cfg Config, verifier *auth.Verifier) error {
	if verifier == nil && cfg.AuthToken == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok || len(md.Get("authorization")) == 0 {
		return status.Error(codes.Unauthenticated, "missing auth token")
	}
	token := strings.TrimPrefix(md.Get("authorization")[0], "Bearer ")

	if verifier != nil {
		if _, err := verifier.ParseAndVerify(token); err != nil {
			return status.Error(codes.Unauthenticated, err.Error())
		}
		return nil
	}
	if token != cfg.AuthToken {
		return status.Error(codes.PermissionDenied, "invalid auth token")
	}
	return nil
}

func authUnaryInterceptor(cfg Config, verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := checkAuth(ctx, cfg, verifier); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func authStreamInterceptor(cfg Config, verifier *auth.Verifier) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkAuth(ss.Context(), cfg, verifier); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// corsUnaryInterceptor mirrors the permissive CORS headers the DataChannel
// path doesn't need but local browser-based gRPC-Web clients of this
// fallback server do.
func corsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		_ = grpc.SetHeader(ctx, metadata.Pairs(
			"Access-Control-Allow-Origin", "*",
			"Access-Control-Allow-Methods", "POST, GET, OPTIONS",
			"Access-Control-Allow-Headers", "Content-Type, Authorization",
		))
		return handler(ctx, req)
	}
}

func serviceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "scraper.ETCScraper",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Health", Handler: healthHandler},
			{MethodName: "Scrape", Handler: scrapeHandler},
			{MethodName: "ScrapeMultiple", Handler: scrapeMultipleHandler},
			{MethodName: "GetDownloadedFiles", Handler: getDownloadedFilesHandler},
		},
		Streams: []grpc.StreamDesc{
			{StreamName: "StreamDownload", Handler: streamDownloadHandler, ServerStreams: true},
		},
		Metadata: "scraper.proto",
	}
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*scraper.Service)
	if interceptor == nil {
		return s.Health(ctx)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/scraper.ETCScraper/Health"}
	return interceptor(ctx, struct{}{}, info, func(ctx context.Context, _ any) (any, error) {
		return s.Health(ctx)
	})
}

func scrapeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*scraper.Service)
	var in scraperpb.ScrapeRequest
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return s.Scrape(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/scraper.ETCScraper/Scrape"}
	return interceptor(ctx, &in, info, func(ctx context.Context, req any) (any, error) {
		return s.Scrape(ctx, *req.(*scraperpb.ScrapeRequest))
	})
}

func scrapeMultipleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*scraper.Service)
	var in scraperpb.ScrapeMultipleRequest
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return s.ScrapeMultiple(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/scraper.ETCScraper/ScrapeMultiple"}
	return interceptor(ctx, &in, info, func(ctx context.Context, req any) (any, error) {
		return s.ScrapeMultiple(ctx, *req.(*scraperpb.ScrapeMultipleRequest))
	})
}

func getDownloadedFilesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*scraper.Service)
	var in scraperpb.GetDownloadedFilesRequest
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return s.GetDownloadedFiles(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/scraper.ETCScraper/GetDownloadedFiles"}
	return interceptor(ctx, &in, info, func(ctx context.Context, req any) (any, error) {
		return s.GetDownloadedFiles(ctx, *req.(*scraperpb.GetDownloadedFilesRequest))
	})
}

func streamDownloadHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*scraper.Service)
	var in scraperpb.StreamDownloadRequest
	if err := stream.RecvMsg(&in); err != nil {
		return err
	}
	sender := &grpcStreamSender{stream: stream}
	return s.StreamDownload(stream.Context(), in, sender)
}

// grpcStreamSender adapts a gRPC server-streaming RPC to transport.StreamSender
// so scraper.Service.StreamDownload's core loop is identical on both paths.
type grpcStreamSender struct {
	stream grpc.ServerStream
}

func (g *grpcStreamSender) SendData(message []byte) error {
	var chunk scraperpb.FileChunk
	if err := jsonCodec{}.Unmarshal(message, &chunk); err != nil {
		return err
	}
	return g.stream.SendMsg(&chunk)
}

func (g *grpcStreamSender) SendEnd(code codec.StatusCode, message string) error {
	if code != codec.StatusOK {
		return status.Error(codes.Code(code), message)
	}
	return nil
}

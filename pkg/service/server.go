package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zoeyai/shapeid/pkg/library"
	"github.com/zoeyai/shapeid/pkg/shapeid"
	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
	"github.com/zoeyai/shapeid/pkg/vision/ncc"
)

const (
	// ServiceName gRPC 服务名
	ServiceName = "shapeid.v1.MatchService"
	// EvaluateMethod Evaluate 方法全名
	EvaluateMethod = "/" + ServiceName + "/Evaluate"

	// MaxMessageSize 单条消息上限，请求中包含整张图像和模板库
	MaxMessageSize = 64 << 20
)

// MatchServiceServer 服务端接口
type MatchServiceServer interface {
	Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error)
}

// ServiceDesc MatchService 描述
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Evaluate",
			Handler:    evaluateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shapeid/v1/match.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EvaluateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: EvaluateMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).Evaluate(ctx, req.(*EvaluateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Register 注册服务
func Register(s grpc.ServiceRegistrar, srv MatchServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server 识别服务实现
type Server struct {
	engine *shapeid.Engine
	logger *zap.Logger
}

// NewServer 创建识别服务，opts 作为每次请求的默认配置
func NewServer(logger *zap.Logger, opts ...shapeid.Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine: shapeid.New(opts...),
		logger: logger,
	}
}

// NewGRPCServer 创建已注册 MatchService 的 gRPC 服务器
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
		grpc.ChainUnaryInterceptor(loggingInterceptor(srv.logger)),
	}, opts...)
	s := grpc.NewServer(opts...)
	Register(s, srv)
	return s
}

// Evaluate 执行一次识别
func (s *Server) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	if req == nil || len(req.Input) == 0 {
		return nil, status.Error(codes.InvalidArgument, "缺少输入图像")
	}

	input, err := decodeInput(req.Input)
	if err != nil {
		return nil, toStatus(err)
	}
	entries, err := req.entries()
	if err != nil {
		return nil, toStatus(err)
	}

	// 请求未设置的字段沿用服务端选项
	var opts []shapeid.Option
	if req.Area != "" {
		area, err := imgproc.ParseArea(req.Area)
		if err != nil {
			return nil, toStatus(err)
		}
		opts = append(opts, shapeid.WithArea(area))
	}
	if req.Label != nil {
		opts = append(opts, shapeid.WithLabel(*req.Label))
	}
	if req.Threshold != nil {
		opts = append(opts, shapeid.WithThreshold(*req.Threshold))
	}

	report, err := s.engine.EvaluateWith(ctx, input, entries, opts...)
	if err != nil {
		return nil, toStatus(err)
	}

	resp, err := toResponse(report, !req.SkipAnnotated)
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Debug("识别完成",
		zap.Int("templates", len(entries)),
		zap.String("area", report.Area.String()),
		zap.String("best", report.BestName),
		zap.Float64("score", resp.BestScore),
		zap.Duration("elapsed", report.Elapsed),
	)
	return resp, nil
}

func decodeInput(data []byte) (image.Image, error) {
	img, err := library.Decode(data)
	if err != nil {
		return nil, &decodeError{what: "输入图像", index: -1, err: err}
	}
	return img, nil
}

// decodeError 图像解码失败
type decodeError struct {
	what  string
	index int
	name  string
	err   error
}

func (e *decodeError) Error() string {
	if e.name != "" {
		return fmt.Sprintf("%s %d (%s) 解码失败: %v", e.what, e.index, e.name, e.err)
	}
	return fmt.Sprintf("%s解码失败: %v", e.what, e.err)
}

func (e *decodeError) Unwrap() error { return e.err }

// toStatus 将错误映射为 gRPC 状态码
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var de *decodeError
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &de),
		errors.Is(err, imgproc.ErrInvalidImage),
		errors.Is(err, imgproc.ErrUnknownArea),
		errors.Is(err, imgproc.ErrRegionOutOfBounds),
		errors.Is(err, ncc.ErrTemplateLargerThanSearchArea):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// loggingInterceptor 记录每次调用的耗时和状态
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil {
			logger.Warn("gRPC 调用失败", append(fields, zap.Error(err))...)
		} else {
			logger.Info("gRPC 调用", fields...)
		}
		return resp, err
	}
}

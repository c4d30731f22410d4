package grpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// InterceptorChain 拦截器链
type InterceptorChain struct {
	log logger.Logger
}

// NewInterceptorChain 创建拦截器链
func NewInterceptorChain(log logger.Logger) *InterceptorChain {
	return &InterceptorChain{log: log.WithComponent("grpc")}
}

// UnaryRecoveryInterceptor 恢复拦截器(捕获 panic)
func (ic *InterceptorChain) UnaryRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ctx, "gRPC handler panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod),
				)
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// StreamRecoveryInterceptor recovers panics of streaming handlers such as Health/Watch.
// StreamRecoveryInterceptor 捕获流式处理器的 panic。
func (ic *InterceptorChain) StreamRecoveryInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ss.Context(), "gRPC stream panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod),
				)
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

// UnaryLoggingInterceptor 日志拦截器
func (ic *InterceptorChain) UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		startTime := time.Now()
		resp, err := handler(ctx, req)
		ic.logCompleted(ctx, info.FullMethod, startTime, err)
		return resp, err
	}
}

// StreamLoggingInterceptor 流式日志拦截器
func (ic *InterceptorChain) StreamLoggingInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		startTime := time.Now()
		err := handler(srv, ss)
		ic.logCompleted(ss.Context(), info.FullMethod, startTime, err)
		return err
	}
}

func (ic *InterceptorChain) logCompleted(ctx context.Context, method string, startTime time.Time, err error) {
	// 提取 Metadata
	md, _ := metadata.FromIncomingContext(ctx)
	var userAgent string
	if agents := md.Get("user-agent"); len(agents) > 0 {
		userAgent = agents[0]
	}

	ic.log.Debug(ctx, "gRPC request completed",
		logger.String("method", method),
		logger.String("user_agent", userAgent),
		logger.Int64("duration_ms", time.Since(startTime).Milliseconds()),
		logger.String("status", status.Code(err).String()),
	)
}

// UnaryErrorInterceptor 错误转换拦截器(将领域错误转换为 gRPC 状态码)
func (ic *InterceptorChain) UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		return resp, toStatus(err)
	}
}

// toStatus 将领域错误转换为 gRPC 错误; errors that already carry a status pass through.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return status.Error(grpcCodes.Internal, "internal server error")
	}

	switch appErr.HTTPStatus() {
	case http.StatusNotFound:
		return status.Error(grpcCodes.NotFound, appErr.Error())
	case http.StatusBadRequest:
		return status.Error(grpcCodes.InvalidArgument, appErr.Error())
	case http.StatusConflict:
		return status.Error(grpcCodes.Aborted, appErr.Error())
	case http.StatusServiceUnavailable:
		return status.Error(grpcCodes.Unavailable, appErr.Error())
	default:
		return status.Error(grpcCodes.Internal, "internal server error")
	}
}

// ServerOptions 链式调用所有拦截器
func (ic *InterceptorChain) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			ic.UnaryRecoveryInterceptor(), // 1. 恢复 panic
			ic.UnaryLoggingInterceptor(),  // 2. 日志
			ic.UnaryErrorInterceptor(),    // 3. 错误转换
		),
		grpc.ChainStreamInterceptor(
			ic.StreamRecoveryInterceptor(),
			ic.StreamLoggingInterceptor(),
		),
	}
}

package service

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client MatchService 客户端
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// NewClient 连接识别服务
// 默认使用明文传输，opts 可覆盖
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(jsonCodec{}),
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
			grpc.MaxCallSendMsgSize(MaxMessageSize),
		),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "连接识别服务失败: %s", addr)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClientFromConn 使用已有连接创建客户端
// Evaluate 会自动附加 CallOptions，连接本身无需配置编码
func NewClientFromConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// CallOptions 调用 MatchService 需要的选项
func CallOptions() []grpc.CallOption {
	return []grpc.CallOption{
		grpc.ForceCodec(jsonCodec{}),
		grpc.MaxCallRecvMsgSize(MaxMessageSize),
		grpc.MaxCallSendMsgSize(MaxMessageSize),
	}
}

// Evaluate 远程执行识别
func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest, opts ...grpc.CallOption) (*EvaluateResponse, error) {
	out := new(EvaluateResponse)
	opts = append(CallOptions(), opts...)
	if err := c.cc.Invoke(ctx, EvaluateMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

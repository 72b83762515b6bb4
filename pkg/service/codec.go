package service

import (
	"encoding/json"
	"fmt"
)

// CodecName JSON 编码名称
const CodecName = "json"

// jsonCodec 实现 grpc encoding.Codec，用 JSON 代替 protobuf
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化消息失败: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("解析消息失败: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return CodecName
}

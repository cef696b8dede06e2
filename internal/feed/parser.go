package feed

import (
	"errors"
	"fmt"

	"github.com/sugawarayuuta/sonnet"

	"kimchi-premium-tracker/internal/server"
)

var (
	// ErrUnknownType 未知的消息类型
	ErrUnknownType = errors.New("未知的消息类型")
	// ErrMissingFrame frame 消息缺少帧内容
	ErrMissingFrame = errors.New("frame 消息缺少帧内容")
)

// Parse 解析一条推送消息
// 返回: frame 消息的 Frame 非空；error 消息的 Frame 为空
func Parse(data []byte) (server.Message, error) {
	var msg server.Message
	if err := sonnet.Unmarshal(data, &msg); err != nil {
		return server.Message{}, fmt.Errorf("解析消息失败: %w", err)
	}
	switch msg.Type {
	case server.TypeFrame:
		if msg.Frame == nil {
			return server.Message{}, ErrMissingFrame
		}
	case server.TypeError:
		msg.Frame = nil
	default:
		return server.Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return msg, nil
}

package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/crypto/sha3"
)

// envelope 持久化信封
// 线格式: {"ts":<毫秒>,"sum":"<data 的 sha3-256 十六进制>","data":<payload>}
type envelope struct {
	Ts   int64           `json:"ts"`
	Sum  string          `json:"sum"`
	Data json.RawMessage `json:"data"`
}

// Encode 编码信封
// 参数 ts: 写入时间（毫秒）
// 参数 payload: 任意可 JSON 序列化的值
func Encode(ts int64, payload any) ([]byte, error) {
	data, err := sonnet.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化缓存数据失败: %w", err)
	}
	return sonnet.Marshal(envelope{Ts: ts, Sum: checksum(data), Data: data})
}

// Decode 解码信封并把 payload 写入 out
// 返回: 写入时间（毫秒）；JSON 损坏、缺少 ts 或校验和不符时返回 ErrCorrupt
func Decode(raw []byte, out any) (int64, error) {
	var env envelope
	if err := sonnet.Unmarshal(raw, &env); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Ts <= 0 || len(env.Data) == 0 {
		return 0, fmt.Errorf("%w: 缺少 ts 或 data", ErrCorrupt)
	}
	if checksum(env.Data) != env.Sum {
		return 0, fmt.Errorf("%w: 校验和不符", ErrCorrupt)
	}
	if err := sonnet.Unmarshal(env.Data, out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return env.Ts, nil
}

func checksum(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

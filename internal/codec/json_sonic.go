//go:build sonic

package codec

import "github.com/bytedance/sonic"

var (
	Marshal   = sonic.Marshal
	Unmarshal = sonic.Unmarshal
)

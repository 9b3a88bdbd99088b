// Package translate 歌词逐行翻译
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/regions"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"
)

// ErrNoCredentials 未配置翻译密钥
var ErrNoCredentials = errors.New("translation credentials not configured")

// batchSize 每次 TextTranslateBatch 请求的行数
const batchSize = 20

// Translator 把歌词逐行翻译成目标语言，结果与输入一一对应
type Translator interface {
	Translate(ctx context.Context, lines []string, target string) ([]string, error)
}

// Tencent 腾讯云机器翻译
type Tencent struct {
	client *tmt.Client
}

// NewTencent 创建客户端。endpoint 为空时使用默认域名，带 http:// 前缀时走明文
func NewTencent(secretID, secretKey, region, endpoint string) (*Tencent, error) {
	if secretID == "" || secretKey == "" {
		return nil, ErrNoCredentials
	}
	credential := common.NewCredential(secretID, secretKey)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.ReqMethod = "POST"
	cpf.HttpProfile.ReqTimeout = 10
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		cpf.HttpProfile.Scheme = "HTTP"
		cpf.HttpProfile.Endpoint = strings.TrimPrefix(endpoint, "http://")
	case endpoint != "":
		cpf.HttpProfile.Endpoint = strings.TrimPrefix(endpoint, "https://")
	}

	if region == "" {
		region = regions.Guangzhou
	}
	client, err := tmt.NewClient(credential, region, cpf)
	if err != nil {
		log.Error().Err(err).Msg("new tencent client error")
		return nil, err
	}
	return &Tencent{client: client}, nil
}

// Translate 分批翻译，源语言自动识别。空行原样保留。
func (t *Tencent) Translate(ctx context.Context, lines []string, target string) ([]string, error) {
	out := make([]string, len(lines))

	var idx []int
	var texts []string
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		idx = append(idx, i)
		texts = append(texts, l)
	}

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		request := tmt.NewTextTranslateBatchRequest()
		request.Source = common.StringPtr("auto")
		request.Target = common.StringPtr(target)
		request.ProjectId = common.Int64Ptr(0)
		request.SourceTextList = common.StringPtrs(texts[start:end])

		response, err := t.client.TextTranslateBatchWithContext(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("translate lines %d-%d: %w", start, end-1, err)
		}
		if response.Response == nil || len(response.Response.TargetTextList) != end-start {
			return nil, fmt.Errorf("translate lines %d-%d: unexpected response size", start, end-1)
		}
		for j, s := range response.Response.TargetTextList {
			if s != nil {
				out[idx[start+j]] = *s
			}
		}
	}

	log.Debug().Int("lines", len(texts)).Str("target", target).Msg("Lyrics translated")
	return out, nil
}

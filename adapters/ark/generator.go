package ark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"imagine/generation"
)

const DefaultModel = "doubao-seedream-4-0-250828"

var ErrMissingKey = errors.New("ark api key is required")

// Image 是火山方舟回傳的一張圖片
type Image struct {
	URL string
}

func (i Image) GetURL() string {
	return i.URL
}

// Result 是一次生成的結果
type Result struct {
	Images []Image
}

func (r *Result) GetImages() []generation.URLHolder {
	holders := make([]generation.URLHolder, 0, len(r.Images))
	for _, image := range r.Images {
		holders = append(holders, image)
	}
	return holders
}

type generateFunc func(ctx context.Context, req model.GenerateImagesRequest) (*Result, error)

type options struct {
	logger    *slog.Logger
	model     string
	size      string
	watermark bool
	generate  generateFunc
}

type Option func(*options)

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithModel 設置使用的模型
func WithModel(name string) Option {
	return func(o *options) {
		o.model = name
	}
}

// WithSize 設置輸出尺寸，例如 1K、2K
func WithSize(size string) Option {
	return func(o *options) {
		o.size = size
	}
}

// WithWatermark 設置是否加上浮水印
func WithWatermark(enabled bool) Option {
	return func(o *options) {
		o.watermark = enabled
	}
}

func withGenerateFunc(fn generateFunc) Option {
	return func(o *options) {
		o.generate = fn
	}
}

// Generator 以火山方舟的同步生圖 API 產生圖片
type Generator struct {
	logger  *slog.Logger
	options options
}

func NewGenerator(apiKey string, opts ...Option) (*Generator, error) {
	// 默認選項
	o := options{
		logger:    slog.Default(),
		model:     DefaultModel,
		size:      "2K",
		watermark: false,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&o)
	}

	if o.generate == nil {
		if apiKey == "" {
			return nil, ErrMissingKey
		}
		client := arkruntime.NewClientWithApiKey(apiKey)
		o.generate = func(ctx context.Context, req model.GenerateImagesRequest) (*Result, error) {
			resp, err := client.GenerateImages(ctx, req)
			if err != nil {
				return nil, err
			}
			if resp.Error != nil {
				return nil, fmt.Errorf("ark api returned %s: %s", resp.Error.Code, resp.Error.Message)
			}
			result := &Result{}
			for _, image := range resp.Data {
				if image.Url == nil {
					continue
				}
				result.Images = append(result.Images, Image{URL: *image.Url})
			}
			return result, nil
		}
	}

	return &Generator{
		logger:  o.logger.With(slog.String("caller", "ArkGenerator")),
		options: o,
	}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string) (any, error) {
	const op = "ArkGenerator.Generate"
	req := model.GenerateImagesRequest{
		Model:          g.options.model,
		Prompt:         prompt,
		Size:           volcengine.String(g.options.size),
		ResponseFormat: volcengine.String(model.GenerateImagesResponseFormatURL),
		Watermark:      volcengine.Bool(g.options.watermark),
	}
	result, err := g.options.generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to generate images, err=%w", op, err)
	}
	g.logger.Debug("Images generated", slog.String("op", op), slog.Int("count", len(result.Images)))
	return result, nil
}

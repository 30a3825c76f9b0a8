package generation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/chanx"
)

// ErrPoolClosed 表示工作池已關閉，不再接受新的工作
var ErrPoolClosed = errors.New("pool is closed")

type poolOptions struct {
	logger     *slog.Logger
	workers    int
	jobTimeout time.Duration
	bufferSize int
}

type PoolOption func(*poolOptions)

// WithPoolLogger 設置日誌記錄器
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(o *poolOptions) {
		o.logger = logger
	}
}

// WithPoolWorkers 設置同時呼叫外部服務的 worker 數量
func WithPoolWorkers(n int) PoolOption {
	return func(o *poolOptions) {
		o.workers = n
	}
}

// WithPoolJobTimeout 設置單一工作的最長執行時間，與呼叫者等待的時間無關
func WithPoolJobTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		o.jobTimeout = d
	}
}

// WithPoolBufferSize 設置工作佇列的初始容量
func WithPoolBufferSize(size int) PoolOption {
	return func(o *poolOptions) {
		o.bufferSize = size
	}
}

// JobResult 是一次外部呼叫的結果
type JobResult struct {
	Result any
	Err    error
}

// Job 代表一個已送出的生成工作
type Job struct {
	prompt    string
	done      chan JobResult
	abandoned atomic.Bool
}

// Done 回傳工作完成時會收到一次結果的通道
func (j *Job) Done() <-chan JobResult {
	return j.done
}

// Abandon 標記呼叫者已不再等待，工作仍會執行完畢但結果會被丟棄
func (j *Job) Abandon() {
	j.abandoned.Store(true)
}

// Pool 以固定數量的 worker 執行生成工作
// 所有 worker 忙碌時新工作會排隊而不是失敗，佇列沒有長度上限
type Pool struct {
	generator  Generator
	queue      *chanx.UnboundedChan[*Job]
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
	options    poolOptions
}

func NewPool(generator Generator, opts ...PoolOption) (*Pool, error) {
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}

	// 默認選項
	options := poolOptions{
		logger:     slog.Default(),
		workers:    10,
		jobTimeout: 5 * time.Minute,
		bufferSize: 64,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.workers <= 0 {
		return nil, errors.New("workers must be positive")
	}

	return &Pool{
		generator: generator,
		closed:    true,
		logger:    options.logger.With(slog.String("caller", "Pool")),
		options:   options,
	}, nil
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}
	p.ctx, p.cancelFunc = context.WithCancel(context.Background())
	// 佇列不跟隨 p.ctx，關閉時才能把排隊中的工作交給 worker 回覆
	p.queue = chanx.NewUnboundedChan[*Job](context.Background(), p.options.bufferSize)
	p.closed = false
	p.logger.Info("starting generation pool", slog.Int("workers", p.options.workers))

	for i := 0; i < p.options.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	logger := p.logger.With(slog.Int("worker", id))
	// 佇列關閉後 Out 會先送出剩餘的工作再關閉
	for job := range p.queue.Out {
		if p.ctx.Err() != nil {
			job.done <- JobResult{Err: ErrPoolClosed}
			continue
		}
		p.run(logger, job)
	}
}

func (p *Pool) run(logger *slog.Logger, job *Job) {
	ctx, cancel := context.WithTimeout(p.ctx, p.options.jobTimeout)
	defer cancel()
	start := time.Now()
	result, err := p.generator.Generate(ctx, job.prompt)
	job.done <- JobResult{Result: result, Err: err}
	if job.abandoned.Load() {
		// 呼叫者已經逾時，外部產生的圖片不會被保存
		logger.Warn("Discard result of abandoned job",
			slog.Duration("elapsed", time.Since(start)),
			slog.Bool("failed", err != nil))
		return
	}
	logger.Debug("Job finished", slog.Duration("elapsed", time.Since(start)))
}

// Submit 將提示詞排入佇列，回傳可等待結果的工作
func (p *Pool) Submit(prompt string) (*Job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	job := &Job{
		prompt: prompt,
		done:   make(chan JobResult, 1),
	}
	p.queue.In <- job
	return job, nil
}

// Len 回傳尚在排隊的工作數量
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0
	}
	return p.queue.Len()
}

// Close 取消所有執行中的外部呼叫，排隊中的工作立即收到 ErrPoolClosed，並等待 worker 結束
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("closing generation pool")
	p.closed = true
	p.cancelFunc()
	close(p.queue.In)
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("generation pool closed")
}

package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fourline/fourline/game"
	"github.com/fourline/fourline/rules"
)

const (
	InputSize  = rules.EncodedSize
	PolicySize = game.Cols
	ValueSize  = 1
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// RuntimeStats summarizes batching behavior for diagnostics.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// OnnxClient runs inference through ONNX Runtime. Requests from concurrent
// callers are coalesced by a batch loop: a batch runs when it fills up or
// when the batch timeout fires, whichever comes first.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	cfg          OnnxClientConfig

	totalBatches  atomic.Int64
	totalItems    atomic.Int64
	totalRunNanos atomic.Int64
	lastBatchSize atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout})
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if runtime.GOOS == "linux" {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			candidates := []string{
				"libonnxruntime.so",
				"libonnxruntime.so.1",
			}
			for _, name := range candidates {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to init ort: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputs := []string{"input"}
	outputs := []string{"policy", "value"}

	// Keep ORT's own threading out of the way; parallelism comes from the
	// search workers.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if os.Getenv("FOURLINE_ORT_DISABLE_CUDA") == "" {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				fmt.Println("Failed to append CUDA provider:", err)
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
	}

	go client.batchLoop()

	return client, nil
}

func (c *OnnxClient) Close() error {
	return c.session.Destroy()
}

func (c *OnnxClient) Stats() RuntimeStats {
	batches := c.totalBatches.Load()
	items := c.totalItems.Load()
	runNanos := c.totalRunNanos.Load()

	avgBatch := 0.0
	avgRunMs := 0.0
	if batches > 0 {
		avgBatch = float64(items) / float64(batches)
		avgRunMs = (float64(runNanos) / 1e6) / float64(batches)
	}

	return RuntimeStats{
		TotalBatches:  batches,
		TotalItems:    items,
		TotalRunNanos: runNanos,
		LastBatchSize: c.lastBatchSize.Load(),
		QueueLen:      len(c.requestsChan),
		AvgBatchSize:  avgBatch,
		AvgRunMs:      avgRunMs,
	}
}

// Predict evaluates every position in states. The states are enqueued
// individually so the batch loop can coalesce them with other callers'
// requests; results come back in input order.
func (c *OnnxClient) Predict(states []game.State) ([][]float32, []float32, error) {
	respChans := make([]chan inferenceResponse, len(states))
	for i, state := range states {
		input := make([]float32, InputSize)
		rules.EncodeInto(state, input)

		respChan := make(chan inferenceResponse, 1)
		respChans[i] = respChan
		c.requestsChan <- inferenceRequest{input: input, respChan: respChan}
	}

	policies := make([][]float32, len(states))
	values := make([]float32, len(states))
	for i, respChan := range respChans {
		resp := <-respChan
		if resp.err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, resp.err)
		}
		policies[i] = resp.policy
		values[i] = resp.value
	}
	return policies, values, nil
}

func (c *OnnxClient) batchLoop() {
	batchInput := make([]float32, 0, c.cfg.BatchSize*InputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)

			if len(requests) >= c.cfg.BatchSize {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		case <-ticker.C:
			if len(requests) > 0 {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	currentBatchSize := int64(len(requests))
	start := time.Now()

	inputShape := []int64{currentBatchSize, rules.Channels, game.Rows, game.Cols}
	inputTensor, err := ort.NewTensor(ort.NewShape(inputShape...), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyShape := []int64{currentBatchSize, PolicySize}
	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(policyShape...))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueShape := []int64{currentBatchSize, ValueSize}
	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(valueShape...))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	err = c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor})
	if err != nil {
		c.failBatch(requests, err)
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()

	c.totalBatches.Add(1)
	c.totalItems.Add(currentBatchSize)
	c.totalRunNanos.Add(time.Since(start).Nanoseconds())
	c.lastBatchSize.Store(currentBatchSize)

	for i, req := range requests {
		policy := make([]float32, PolicySize)
		copy(policy, policyData[i*PolicySize:(i+1)*PolicySize])

		req.respChan <- inferenceResponse{
			policy: policy,
			value:  valueData[i*ValueSize],
			err:    nil,
		}
	}
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

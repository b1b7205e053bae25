package fxloop

import (
	"fmt"
	"sync"

	"github.com/opd-ai/fxloop/audio"
	"github.com/opd-ai/fxloop/stats"
	"github.com/sirupsen/logrus"
)

// Engine owns the block processor and the statistics reporter for one
// effects loop.
type Engine struct {
	options   *Options
	processor *audio.Processor
	reporter  *stats.Reporter

	closeOnce sync.Once
	closeErr  error
}

// New creates an engine from options. A nil options value uses NewOptions.
//
// The effect chain is built from options.EffectChain in order; an unknown
// identifier fails with audio.ErrUnknownEffect.
func New(options *Options) (*Engine, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    err.Error(),
		}).Error("Invalid options")
		return nil, err
	}

	chain, err := options.registry().BuildChain(options.EffectChain, options.EffectConfig())
	if err != nil {
		return nil, fmt.Errorf("build effect chain: %w", err)
	}

	processor, err := audio.NewProcessor(options.ProcessorConfig(), chain)
	if err != nil {
		_ = chain.Close()
		return nil, fmt.Errorf("create processor: %w", err)
	}
	processor.EnableDetailedLogging(options.DetailedLogging)

	sink := options.Sink
	if sink == nil {
		sink = stats.NewLogSink(nil)
	}
	reporter := stats.NewReporter(processor.Stats(), sink, options.ReportInterval)

	logrus.WithFields(logrus.Fields{
		"function":        "New",
		"effects":         processor.EffectNames(),
		"report_interval": options.ReportInterval,
	}).Info("Engine created")

	return &Engine{
		options:   options,
		processor: processor,
		reporter:  reporter,
	}, nil
}

// Options returns the options the engine was built with.
func (e *Engine) Options() *Options {
	return e.options
}

// Processor returns the block processor handed to the device shim.
func (e *Engine) Processor() *audio.Processor {
	return e.processor
}

// Reporter returns the statistics reporter driven by the render loop.
func (e *Engine) Reporter() *stats.Reporter {
	return e.reporter
}

// Close closes the processor and its effect chain. Stop the device first.
// Close is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.processor.Close()
		logrus.WithFields(logrus.Fields{
			"function": "Engine.Close",
			"blocks":   e.processor.Stats().Blocks(),
		}).Info("Engine closed")
	})
	return e.closeErr
}

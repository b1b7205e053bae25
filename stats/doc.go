// Package stats turns render-loop frame ticks and the audio processor's
// latency measurements into periodic statistics reports.
//
// The Reporter lives entirely on the render side: OnFrameRendered is called
// once per drawn frame, samples the processor's last latency through atomic
// loads, and at most once per interval computes the frame rate and emits a
// Report to a Sink. Nothing here ever waits on the audio thread.
//
//	reporter := stats.NewReporter(processor.Stats(), stats.NewLogSink(logrus.StandardLogger()), time.Second)
//	for running {
//	    draw()
//	    reporter.OnFrameRendered()
//	}
package stats

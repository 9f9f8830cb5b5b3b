// Package metrics records job run and step metrics.
//
// Components receive a Recorder and default to NoopRecorder, so metrics are
// optional everywhere:
//
//	job := pipeline.NewJob(cfg).WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// The daemon serves the Prometheus registry on /metrics via HTTPHandler.
package metrics

// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/syzformat/model"
	"github.com/google/syzformat/pkg/log"
	"github.com/google/syzformat/pkg/osutil"
	"github.com/google/syzformat/pkg/runner"
	"github.com/google/syzformat/pkg/snapshot"
	"github.com/google/syzformat/pkg/stat"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

const maxRequestSize = 64 << 20

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve crack, generate and roundtrip over http",
		Long: "Serve listens on the config http address (or --http) and handles:\n" +
			"  POST /crack      input bytes -> yaml element tree\n" +
			"  POST /snapshot   input bytes -> CBOR snapshot\n" +
			"  POST /generate   CBOR snapshot -> generated bytes\n" +
			"  POST /roundtrip  input bytes -> roundtrip status\n" +
			"  GET  /metrics    prometheus metrics",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.HTTP = addr
			}
			m, err := a.load()
			if err != nil {
				return err
			}
			log.EnableLogCaching(1000, 1<<20)
			srv, err := newServer(m, a.cfg.Procs)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", a.cfg.HTTP)
			if err != nil {
				return fmt.Errorf("failed to listen on %v: %w", a.cfg.HTTP, err)
			}
			log.Logf(0, "serving %v on http://%v", m.Name(), ln.Addr())
			return srv.serve(osutil.HandleInterrupts(cmd.Context()), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address (overrides config)")
	return cmd
}

type server struct {
	mu    sync.Mutex
	base  *model.DataModel
	run   *runner.Runner
	reg   *prometheus.Registry
	stats *stat.Set

	statRequests *stat.Val
	statErrors   *stat.Val
}

func newServer(m *model.DataModel, procs int) (*server, error) {
	reg := prometheus.NewRegistry()
	set := stat.NewSet(reg)
	run, err := runner.New(m, runner.Config{Procs: procs, Stats: set})
	if err != nil {
		return nil, err
	}
	return &server{
		base:  m,
		run:   run,
		reg:   reg,
		stats: set,
		statRequests: set.New("requests", "Number of http requests", stat.Console, stat.Rate{},
			stat.Prometheus("syz_format_http_requests")),
		statErrors: set.New("request errors", "Number of failed http requests",
			stat.Prometheus("syz_format_http_errors")),
	}, nil
}

func (srv *server) handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		mux.Handle(pattern, handlers.CompressHandler(http.HandlerFunc(handler)))
	}
	handle("/", srv.httpSummary)
	handle("/crack", srv.post(srv.httpCrack))
	handle("/snapshot", srv.post(srv.httpSnapshot))
	handle("/generate", srv.post(srv.httpGenerate))
	handle("/roundtrip", srv.post(srv.httpRoundtrip))
	handle("/metrics", promhttp.HandlerFor(srv.reg, promhttp.HandlerOpts{}).ServeHTTP)
	handle("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(log.VerboseWriter(1), mux))
}

func (srv *server) serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hs.Shutdown(shutdownCtx)
	}()
	if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// clone returns a private copy of the base model for one request.
func (srv *server) clone() *model.DataModel {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.base.Clone()
}

type postHandler func(w http.ResponseWriter, r *http.Request, body []byte) error

func (srv *server) post(fn postHandler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		srv.statRequests.Add(1)
		if r.Method != http.MethodPost {
			srv.statErrors.Add(1)
			http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
		if err == nil && len(body) > maxRequestSize {
			err = fmt.Errorf("request is larger than %v bytes", maxRequestSize)
		}
		if err == nil {
			err = fn(w, r, body)
		}
		if err != nil {
			srv.statErrors.Add(1)
			log.Logf(1, "%v: %v", r.URL.Path, err)
			status := http.StatusInternalServerError
			var cf *model.CrackingFailure
			if errors.As(err, &cf) {
				status = http.StatusUnprocessableEntity
			}
			http.Error(w, err.Error(), status)
		}
	}
}

func (srv *server) httpCrack(w http.ResponseWriter, r *http.Request, body []byte) error {
	m := srv.clone()
	if err := m.CrackBytes(body); err != nil {
		return err
	}
	node, err := dumpModel(m, true)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, err = w.Write(out)
	return err
}

func (srv *server) httpSnapshot(w http.ResponseWriter, r *http.Request, body []byte) error {
	m := srv.clone()
	if err := m.CrackBytes(body); err != nil {
		return err
	}
	out, err := snapshot.Take(m).Marshal()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, err = w.Write(out)
	return err
}

func (srv *server) httpGenerate(w http.ResponseWriter, r *http.Request, body []byte) error {
	snap, err := snapshot.Unmarshal(body)
	if err != nil {
		return err
	}
	m := srv.clone()
	if err := snap.Apply(m); err != nil {
		return err
	}
	out, err := m.Bytes()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, err = w.Write(out)
	return err
}

func (srv *server) httpRoundtrip(w http.ResponseWriter, r *http.Request, body []byte) error {
	results, err := srv.run.Run(r.Context(), []runner.Input{{Name: "request", Data: body}})
	if err != nil {
		return err
	}
	res := results[0]
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if res.Status != runner.OK {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintf(w, "%v: %v\n%v", res.Status, res.Err, res.Diff)
		return nil
	}
	fmt.Fprintf(w, "%v\n", res.Status)
	return nil
}

func (srv *server) httpSummary(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "model: %v\n\n", srv.base.Name())
	printStats(buf, srv.stats)
	if logs := log.CachedLogOutput(); logs != "" {
		fmt.Fprintf(buf, "\nlog:\n%v", logs)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}

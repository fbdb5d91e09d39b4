// Package server exposes the decompressor over HTTP.
//
// Each request is traced with opentracing.GlobalTracer(). Register a tracer
// with opentracing.SetGlobalTracer before Run to export spans; otherwise they
// go to the no-op tracer.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/unflate/cache"
	"github.com/dselans/unflate/config"
	"github.com/dselans/unflate/container"
	"github.com/dselans/unflate/inflate"
)

const (
	HeaderBlocks = "X-Unflate-Blocks"
	HeaderFormat = "X-Unflate-Format"
	HeaderCache  = "X-Unflate-Cache"

	shutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.TOMLServer
	dec      *inflate.Decompressor
	cache    cache.Cache
	defaults container.Options
	router   *mux.Router
	log      *logrus.Entry
}

// cached is what gets stored in the cache for a decoded request
type cached struct {
	Format string `json:"format"`
	Blocks int    `json:"blocks"`
	Data   []byte `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(cfg *config.Config, c cache.Cache) (*Server, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "error validating config")
	}

	if c == nil {
		return nil, errors.New("cache cannot be nil")
	}

	enc, err := container.ParseEncoding(cfg.TOML.Source.Encoding)
	if err != nil {
		return nil, err
	}

	format, err := container.ParseFormat(cfg.TOML.Source.Container)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg: cfg.TOML.Server,
		dec: inflate.New(&inflate.Config{
			MaxOutputSize: cfg.TOML.Config.MaxOutputSize,
			Log:           logrus.WithField("pkg", "inflate"),
		}),
		cache: c,
		defaults: container.Options{
			Encoding:  enc,
			Format:    format,
			SkipBytes: cfg.TOML.Source.SkipBytes,
		},
		log: logrus.WithField("pkg", "server"),
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/inflate", s.inflateHandler).Methods(http.MethodPost)
	s.router.Use(s.logMiddleware)

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.Infof("listening on %s", s.cfg.ListenAddress)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server error")
	case <-ctx.Done():
		s.log.Debug("received shutdown signal, stopping http server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "unable to shut down http server")
	}

	return nil
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"took":   time.Since(start),
		}).Debug("handled request")
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.VERSION,
	})
}

func (s *Server) inflateHandler(w http.ResponseWriter, r *http.Request) {
	span, _ := opentracing.StartSpanFromContext(r.Context(), "inflate")
	defer span.Finish()

	ext.HTTPMethod.Set(span, r.Method)
	ext.HTTPUrl.Set(span, r.URL.String())

	fail := func(status int, err error) {
		ext.HTTPStatusCode.Set(span, uint16(status))
		ext.Error.Set(span, true)
		span.SetTag("error.message", err.Error())

		if status >= http.StatusInternalServerError {
			s.log.Errorf("inflate request failed: %s", err)
		}

		writeError(w, status, err)
	}

	opts, err := s.options(r)
	if err != nil {
		fail(http.StatusBadRequest, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, errors.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}

		fail(http.StatusBadRequest, errors.Wrap(err, "unable to read request body"))
		return
	}

	span.SetTag("input.size", len(body))

	key := cache.Key(body, string(opts.Encoding), string(opts.Format), strconv.Itoa(opts.SkipBytes))

	entry, hit, err := s.lookup(key)
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}

	if !hit {
		res, err := container.Decode(body, opts, s.dec)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, inflate.ErrOutputLimit) {
				status = http.StatusRequestEntityTooLarge
			}

			fail(status, err)
			return
		}

		entry = &cached{
			Format: string(res.Format),
			Blocks: len(res.Blocks),
			Data:   res.Data,
		}

		s.store(key, entry)
	}

	span.SetTag("output.size", len(entry.Data))
	span.SetTag("cache.hit", hit)
	ext.HTTPStatusCode.Set(span, http.StatusOK)

	cacheStatus := "miss"
	if hit {
		cacheStatus = "hit"
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
	w.Header().Set(HeaderBlocks, strconv.Itoa(entry.Blocks))
	w.Header().Set(HeaderFormat, entry.Format)
	w.Header().Set(HeaderCache, cacheStatus)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(entry.Data); err != nil {
		s.log.Debugf("unable to write response: %s", err)
	}
}

// options builds decode options from the query string, falling back to the
// configured [source] values.
func (s *Server) options(r *http.Request) (*container.Options, error) {
	opts := s.defaults
	q := r.URL.Query()

	if v := q.Get("encoding"); v != "" {
		enc, err := container.ParseEncoding(v)
		if err != nil {
			return nil, err
		}

		opts.Encoding = enc
	}

	if v := q.Get("container"); v != "" {
		format, err := container.ParseFormat(v)
		if err != nil {
			return nil, err
		}

		opts.Format = format
	}

	if v := q.Get("skip_bytes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > config.MaxSkipBytes {
			return nil, errors.Errorf("invalid skip_bytes '%s'", v)
		}

		opts.SkipBytes = n
	}

	return &opts, nil
}

func (s *Server) lookup(key string) (*cached, bool, error) {
	data, ok, err := s.cache.Get(key)
	if err != nil {
		return nil, false, errors.Wrap(err, "cache lookup failed")
	}

	if !ok {
		return nil, false, nil
	}

	entry := &cached{}
	if err := json.Unmarshal(data, entry); err != nil {
		// Treat an unreadable entry as a miss; it gets overwritten
		s.log.Warnf("discarding unreadable cache entry '%s': %s", key, err)
		return nil, false, nil
	}

	return entry, true, nil
}

// store failures are logged only; the response is still good.
func (s *Server) store(key string, entry *cached) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.log.Warnf("unable to marshal cache entry: %s", err)
		return
	}

	if err := s.cache.Set(key, data); err != nil {
		s.log.Warnf("unable to store cache entry: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("unable to write json response: %s", err)
	}
}

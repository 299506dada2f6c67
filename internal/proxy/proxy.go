package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wallet-activity/internal/metrics"
)

// HistoryPath is the route the fetch client calls.
const HistoryPath = "/api/wallet-history"

const (
	msgMissingAddress = "Missing address parameter"
	msgNotConfigured  = "API not configured"
	msgForwardFailed  = "Failed to fetch transactions"
)

var errInvalidJSON = errors.New("upstream body is not json")

// Options parameterise the proxy.
type Options struct {
	UpstreamURL    string
	APIKey         string
	ChainID        int64
	Timeout        time.Duration
	AllowedOrigins []string
}

// Server forwards history requests to the explorer with the server-side key.
type Server struct {
	opts    Options
	client  *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// New constructs a proxy server.
func New(opts Options, logger zerolog.Logger, m *metrics.Metrics) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Server{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger.With().Str("component", "proxy").Logger(),
		metrics: m,
	}
}

// Router builds the gin engine serving the proxy, health and metrics routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.New(s.corsConfig()))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET(HistoryPath, s.walletHistory)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("proxy listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown proxy: %w", err)
		}
		return nil
	}
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions, http.MethodHead},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = s.opts.AllowedOrigins
	return cfg
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == HistoryPath {
			s.metrics.RecordProxyRequest(c.Writer.Status(), time.Since(start))
		}
	}
}

func (s *Server) walletHistory(c *gin.Context) {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, errorBody{Status: "0", Message: msgMissingAddress})
		return
	}
	if s.opts.APIKey == "" {
		s.logger.Error().Msg("explorer api key not configured")
		c.JSON(http.StatusInternalServerError, errorBody{Status: "0", Message: msgNotConfigured})
		return
	}

	body, err := s.forward(c.Request.Context(), address)
	if err != nil {
		s.logger.Error().Err(err).Str("address", address).Msg("forward to explorer failed")
		c.JSON(http.StatusInternalServerError, errorBody{Status: "0", Message: msgForwardFailed})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *Server) forward(ctx context.Context, address string) ([]byte, error) {
	endpoint, err := s.upstreamURL(address)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the api key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("request explorer: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read explorer body: %w", err)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w (http %d)", errInvalidJSON, resp.StatusCode)
	}
	return payload, nil
}

func (s *Server) upstreamURL(address string) (string, error) {
	u, err := url.Parse(s.opts.UpstreamURL)
	if err != nil {
		return "", fmt.Errorf("parse upstream url: %w", err)
	}
	q := u.Query()
	q.Set("chainid", strconv.FormatInt(s.opts.ChainID, 10))
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("sort", "desc")
	q.Set("apikey", s.opts.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package api serves read-only introspection of presets, schemas and the latest run.
package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/TFMV/rawlayer/metrics"
	"github.com/TFMV/rawlayer/pkg/anomaly"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/validation"
	"github.com/TFMV/rawlayer/version"
)

// ServerOptions configure the HTTP server.
type ServerOptions struct {
	Port    string
	Prefork bool
	// DataDir is the output directory whose manifest /runs/latest serves.
	DataDir string
	Logger  *zap.Logger
}

// Server holds the Fiber app instance
type Server struct {
	app  *fiber.App
	opts ServerOptions
	log  *zap.Logger
}

// Column describes one column of a declared table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableInfo describes a declared table.
type TableInfo struct {
	Name        string   `json:"name"`
	PartitionBy string   `json:"partition_by"`
	ClusterBy   []string `json:"cluster_by"`
	Columns     []Column `json:"columns"`
	DDL         string   `json:"ddl,omitempty"`
}

func tableInfo(t schema.Table, withDDL bool) TableInfo {
	info := TableInfo{Name: t.Name, PartitionBy: t.PartitionBy, ClusterBy: t.ClusterBy}
	for _, f := range t.Schema.Fields() {
		info.Columns = append(info.Columns, Column{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable})
	}
	if withDDL {
		info.DDL = schema.DDL("raw", t)
	}
	return info
}

// NewServer initializes a new Fiber instance.
func NewServer(opts ServerOptions) *Server {
	if opts.Port == "" {
		opts.Port = "8080"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		IdleTimeout:           10 * time.Second,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		Prefork:               opts.Prefork,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{app: app, opts: opts, log: opts.Logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	s.app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Rawlayer API",
			"version": version.Version,
			"build":   version.BuildDate,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	s.app.Get("/presets", func(c *fiber.Ctx) error {
		return c.JSON(generate.Presets)
	})

	s.app.Get("/anomalies", func(c *fiber.Ctx) error {
		return c.JSON(anomaly.Defaults())
	})

	s.app.Get("/schemas", func(c *fiber.Ctx) error {
		var out []TableInfo
		for _, t := range schema.Tables() {
			out = append(out, tableInfo(t, false))
		}
		return c.JSON(out)
	})

	s.app.Get("/schemas/:table", func(c *fiber.Ctx) error {
		t, err := schema.Lookup(c.Params("table"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(tableInfo(t, true))
	})

	s.app.Get("/runs/latest", func(c *fiber.Ctx) error {
		m, err := metrics.LoadManifest(filepath.Join(s.opts.DataDir, metrics.ManifestFile))
		if errors.Is(err, os.ErrNotExist) {
			return fiber.NewError(fiber.StatusNotFound, "no run found in "+s.opts.DataDir)
		}
		if err != nil {
			return err
		}
		return c.JSON(m)
	})

	s.app.Get("/runs/latest/audit", func(c *fiber.Ctx) error {
		a, err := validation.NewAuditor(s.opts.DataDir, s.log)
		if err != nil {
			return err
		}
		if a.Manifest == nil {
			return fiber.NewError(fiber.StatusNotFound, "no run found in "+s.opts.DataDir)
		}
		report, err := a.Audit(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(report)
	})
}

// GetApp exposes the Fiber app, mainly for app.Test.
func (s *Server) GetApp() *fiber.App {
	return s.app
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rawlayer API is running", zap.String("port", s.opts.Port), zap.String("data_dir", s.opts.DataDir))
		errCh <- s.app.Listen(":" + s.opts.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Received shutdown signal, stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("Server shutdown successfully")
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

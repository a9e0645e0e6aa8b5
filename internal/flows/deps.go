package flows

import (
	"context"
	"io"
	nethttp "net/http"
	"os"
	"time"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/connector/jdbc"
	"github.com/nucleus/etl-flows/internal/connector/minio"
	"github.com/nucleus/etl-flows/internal/logger"
	"github.com/nucleus/etl-flows/internal/vault"
)

// Deps are the collaborators shared by every flow. Only Settings and
// Secrets are required; the connection factories default to the real
// MinIO and Postgres clients.
type Deps struct {
	Settings *config.Settings
	Secrets  vault.SecretReader
	Log      logger.Logger

	// Transport overrides the round tripper of the API sources.
	Transport nethttp.RoundTripper
	// Out receives the results summary.
	Out   io.Writer
	Clock func() time.Time

	ObjectStore func(ctx context.Context, task config.Task) (minio.ObjectStore, error)
	Database    func(ctx context.Context, task config.Task) (*jdbc.Postgres, error)
	Mart        func(ctx context.Context, task config.Task) (*jdbc.MartReader, error)
}

func (d *Deps) withDefaults() *Deps {
	c := *d
	if c.Settings == nil {
		c.Settings = &config.Settings{}
	}
	if c.Log == nil {
		c.Log = logger.NewNop()
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.ObjectStore == nil {
		c.ObjectStore = c.openObjectStore
	}
	if c.Database == nil {
		c.Database = c.openDatabase
	}
	if c.Mart == nil {
		c.Mart = c.openMart
	}
	return &c
}

func (d *Deps) openObjectStore(ctx context.Context, task config.Task) (minio.ObjectStore, error) {
	var s minio.Secrets
	if err := vault.Read(ctx, d.Secrets, task.Secrets.MountPoint, task.Secrets.Path, &s); err != nil {
		return nil, err
	}
	cfg, err := minio.ParseConfig(s, d.Settings.SSLCertFile)
	if err != nil {
		return nil, err
	}
	return minio.NewS3Client(cfg)
}

func (d *Deps) dbConfig(ctx context.Context, task config.Task) (jdbc.Config, error) {
	var s jdbc.Secrets
	if err := vault.Read(ctx, d.Secrets, task.Secrets.MountPoint, task.Secrets.Path, &s); err != nil {
		return jdbc.Config{}, err
	}
	return jdbc.Config{
		Secrets:     s,
		Database:    task.Data.Destination.Database,
		SSLRootCert: d.Settings.SSLCertFile,
		SSLMode:     task.Option("sslmode", ""),
	}, nil
}

func (d *Deps) openDatabase(ctx context.Context, task config.Task) (*jdbc.Postgres, error) {
	cfg, err := d.dbConfig(ctx, task)
	if err != nil {
		return nil, err
	}
	return jdbc.Open(ctx, cfg, d.Log)
}

func (d *Deps) openMart(ctx context.Context, task config.Task) (*jdbc.MartReader, error) {
	cfg, err := d.dbConfig(ctx, task)
	if err != nil {
		return nil, err
	}
	return jdbc.NewMartReader(ctx, cfg)
}

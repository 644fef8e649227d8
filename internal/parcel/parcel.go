// internal/parcel/parcel.go
package parcel

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"tigdiff/internal/blob"
	"tigdiff/internal/config"
	"tigdiff/internal/odb"
	"tigdiff/internal/report"
	reportStorage "tigdiff/internal/report/storage"
	"tigdiff/internal/rewrites"
	"tigdiff/internal/treediff"
)

// Parcel bundles everything needed to detect rewrites in one repository:
// the repository itself, the blob caches in front of it and the report store.
type Parcel struct {
	Root     string
	Repo     *git.Repository
	DB       *badger.DB
	Blobs    *odb.Store
	Cache    *odb.Cache
	Detector *treediff.Detector
	Reports  report.Box
	Defaults rewrites.Rewrites
	Logger   *zap.Logger
}

// Options selects how much of a Parcel is backed by disk
type Options struct {
	// Keep blobs and reports in cfg.Database.Path. Otherwise they live in
	// memory and vanish on Close.
	Persist bool
}

// Open builds a Parcel for the repository named by cfg
func Open(cfg *config.Config, logger *zap.Logger, opts Options) (*Parcel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Convert path to absolute
	root, err := filepath.Abs(cfg.Repository.Path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for repository %s: %w", cfg.Repository.Path, err)
	}

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", root, err)
	}

	defaults, err := cfg.Rewrites.Options()
	if err != nil {
		return nil, err
	}

	dbPath := ""
	if opts.Persist {
		dbPath = cfg.Database.Path
	}
	db, err := InitDB(dbPath)
	if err != nil {
		return nil, err
	}

	p, err := assemble(cfg, repo, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	p.Root = root
	p.Defaults = defaults

	logger.Debug("parcel opened",
		zap.String("root", root),
		zap.Bool("persist", opts.Persist),
		zap.Int("cache_entries", cfg.Cache.Entries))
	return p, nil
}

func assemble(cfg *config.Config, repo *git.Repository, db *badger.DB, logger *zap.Logger) (*Parcel, error) {
	minSize, err := cfg.Cache.CompressMinSizeBytes()
	if err != nil {
		return nil, err
	}
	maxBlob, err := cfg.Cache.MaxBlobSizeBytes()
	if err != nil {
		return nil, err
	}

	compression := odb.DefaultCompressionOptions()
	compression.MinSize = minSize
	blobs, err := odb.NewStore(db, odb.StoreOptions{Compression: compression, Logger: logger})
	if err != nil {
		return nil, err
	}

	// memory first, then badger, then the repository itself
	cache, err := odb.NewCache(blobs.Through(odb.NewGit(repo.Storer)), cfg.Cache.Entries)
	if err != nil {
		blobs.Close()
		return nil, err
	}

	detector := treediff.NewDetector(repo, treediff.DetectorOptions{
		Objects: cache,
		Differ:  blob.NewPlatform(blob.Options{MaxBlobSize: maxBlob, Logger: logger}),
		Filter: treediff.Filter{
			SkipPrefixes: cfg.Rewrites.SkipPrefixes,
			SkipVendored: cfg.Rewrites.SkipVendored,
		},
		Logger:     logger,
		Repository: cfg.Repository.Path,
	})

	return &Parcel{
		Repo:     repo,
		DB:       db,
		Blobs:    blobs,
		Cache:    cache,
		Detector: detector,
		Reports:  reportStorage.NewStore(db),
		Logger:   logger,
	}, nil
}

func (p *Parcel) Close() error {
	var errs []error
	if p.Blobs != nil {
		p.Blobs.Close()
	}
	if p.DB != nil {
		errs = append(errs, p.DB.Close())
	}
	return errors.Join(errs...)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/auth"
	"rememberme/api/internal/avatar"
	"rememberme/api/internal/config"
	"rememberme/api/internal/docstore"
	"rememberme/api/internal/kms"
	"rememberme/api/internal/session"
)

// Closer releases a dependency opened by one of the Open functions.
type Closer func() error

func noopCloser() error { return nil }

// SetLogLevel applies the configured log level to the default logger.
func SetLogLevel(level string) {
	parsed, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warn("unknown log level, using info", "level", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// OpenStore opens the configured document store backend wrapped in the
// retry loop. Postgres migrations are applied when migrate is set.
func OpenStore(ctx context.Context, cfg config.Config, migrate bool) (docstore.Store, error) {
	var backend docstore.Backend
	switch cfg.DocstoreDriver {
	case "postgres":
		db, err := docstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := docstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
		}
		backend = docstore.NewPostgres(db)
	case "mongo":
		mongoStore, err := docstore.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		backend = mongoStore
	default:
		log.Warn("using the in-memory document store, data is lost on restart")
		backend = docstore.NewMemory()
	}
	log.Info("document store ready", "driver", cfg.DocstoreDriver)
	return docstore.NewRetrying(backend, docstore.RetryOptions{
		MaxAttempts: cfg.TxMaxAttempts,
		BaseDelay:   cfg.TxRetryBase,
	}), nil
}

// OpenOracle opens the KMS. The local driver creates its key file on first
// use.
func OpenOracle(ctx context.Context, cfg config.Config) (kms.Oracle, Closer, error) {
	if cfg.KMSDriver == "gcp" {
		oracle, err := kms.NewCloudOracle(ctx, cfg.KMSKeyVersion)
		if err != nil {
			return nil, nil, err
		}
		return oracle, oracle.Close, nil
	}

	if _, err := os.Stat(cfg.KMSLocalKeyFile); errors.Is(err, os.ErrNotExist) {
		if err := WriteLocalKey(cfg.KMSLocalKeyFile, false); err != nil {
			return nil, nil, err
		}
		log.Warn("generated a local KMS key", "path", cfg.KMSLocalKeyFile)
	}
	oracle, err := kms.LoadLocalOracle(cfg.KMSKeyVersion, cfg.KMSLocalKeyFile)
	if err != nil {
		return nil, nil, err
	}
	return oracle, noopCloser, nil
}

// WriteLocalKey writes a new RSA key for the local KMS to path.
func WriteLocalKey(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	pemBytes, err := kms.GenerateLocalKey(3072)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// OpenIdentity opens the configured identity provider.
func OpenIdentity(ctx context.Context, cfg config.Config) (auth.Provider, Closer, error) {
	if cfg.IdentityProvider == "firebase" {
		provider, err := auth.NewFirebaseProvider(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return provider, noopCloser, nil
	}

	var (
		claims auth.ClaimsStore
		closer Closer = noopCloser
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info("using redis for identity claims")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		claims, closer = redisStore, redisStore.Close
	} else {
		log.Warn("using in-memory identity claims, identities are lost on restart")
		claims = session.NewMemoryStore()
	}
	provider := auth.NewLocalProvider([]byte(cfg.JWTSecret), claims, cfg.IdentityTTL, cfg.SessionTTL)
	return provider, closer, nil
}

// OpenImages connects the profile image bucket. It returns nil when no
// endpoint is configured.
func OpenImages(ctx context.Context, cfg config.Config) (ImageStore, error) {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return nil, nil
	}
	store, err := avatar.Open(ctx, avatar.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

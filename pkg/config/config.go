// Package config holds the repository-wide defaults read from and
// written to a repository's flat .dits/config file: hash algorithm
// selection, default chunking profile, at-rest compression/encryption,
// verification cadence, and ingest backpressure depth.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/byronwade/dits/pkg/chunk"
	"github.com/byronwade/dits/pkg/hashapi"
)

// Config holds the settings every repository operation consults. It is
// small and flat by design: the on-disk form is plain key=value lines
// (spec §6), not a structured format, so every field here must round-trip
// through a scalar string.
type Config struct {
	// HashAlgo selects the C1 backend: "blake3" (default) or "sha256".
	HashAlgo string

	// DefaultProfile names the chunking profile used when a caller does
	// not name one explicitly (see pkg/chunk.Profile).
	DefaultProfile string

	// CompressChunks enables zstd compression of chunk bytes at rest.
	CompressChunks bool

	// VerifyTTL is the window during which a Get may skip re-hashing a
	// chunk already verified inside it. Zero (the default) means always
	// re-verify on read — correctness over speed, per spec §4.4.
	VerifyTTL time.Duration

	// BackgroundVerifyInterval controls how often the background
	// verifier re-scans chunks whose verified_at has aged out.
	BackgroundVerifyInterval time.Duration

	// CipherEnabled turns on convergent at-rest encryption via
	// pkg/cipher. When true, CipherSaltHex must be a 64-character hex
	// string (the repository's 32-byte salt, generated once at init and
	// never rotated without re-encrypting every chunk).
	CipherEnabled bool
	CipherSaltHex string

	// IngestQueueDepth bounds the channel between the chunk-production
	// goroutine and the chunk-store-writing goroutine during ingest
	// (spec §5's backpressure requirement).
	IngestQueueDepth int
}

// DefaultConfig returns the settings a freshly initialized repository
// starts with.
func DefaultConfig() Config {
	return Config{
		HashAlgo:                 string(hashapi.AlgoBLAKE3),
		DefaultProfile:           string(chunk.ProfileGeneric),
		CompressChunks:           true,
		VerifyTTL:                0,
		BackgroundVerifyInterval: 30 * 24 * time.Hour,
		CipherEnabled:            false,
		CipherSaltHex:            "",
		IngestQueueDepth:         32,
	}
}

// LoadFromEnv overlays environment variable overrides (DITS_<FIELD>) on
// top of DefaultConfig(). It never fails on a malformed value: a duration
// or number that does not parse is ignored and the default for that
// field is kept, while a boolean override other than "1", "true" or
// "TRUE" sets the field to false. This is the same tolerant pattern the
// teacher used for its own env-var loader.
func LoadFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DITS_HASH_ALGO"); v != "" {
		cfg.HashAlgo = v
	}
	if v := os.Getenv("DITS_DEFAULT_PROFILE"); v != "" {
		cfg.DefaultProfile = v
	}
	if v := os.Getenv("DITS_COMPRESS_CHUNKS"); v != "" {
		cfg.CompressChunks = v == "1" || v == "true" || v == "TRUE"
	}
	if v := os.Getenv("DITS_VERIFY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.VerifyTTL = d
		}
	}
	if v := os.Getenv("DITS_BACKGROUND_VERIFY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BackgroundVerifyInterval = d
		}
	}
	if v := os.Getenv("DITS_CIPHER_ENABLED"); v != "" {
		cfg.CipherEnabled = v == "1" || v == "true" || v == "TRUE"
	}
	if v := os.Getenv("DITS_CIPHER_SALT"); v != "" {
		cfg.CipherSaltHex = v
	}
	if v := os.Getenv("DITS_INGEST_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IngestQueueDepth = n
		}
	}

	return cfg
}

// Validate rejects inconsistent configuration before it reaches any
// storage component.
func (c Config) Validate() error {
	switch hashapi.Algo(c.HashAlgo) {
	case hashapi.AlgoBLAKE3, hashapi.AlgoSHA256:
	default:
		return fmt.Errorf("config: invalid hash algorithm %q (must be %q or %q)", c.HashAlgo, hashapi.AlgoBLAKE3, hashapi.AlgoSHA256)
	}

	if _, err := chunk.ParamsFor(chunk.Profile(c.DefaultProfile)); err != nil {
		return fmt.Errorf("config: invalid default profile: %w", err)
	}

	if c.VerifyTTL < 0 {
		return fmt.Errorf("config: verify TTL cannot be negative, got %s", c.VerifyTTL)
	}
	if c.BackgroundVerifyInterval <= 0 {
		return fmt.Errorf("config: background verify interval must be positive, got %s", c.BackgroundVerifyInterval)
	}

	if c.CipherEnabled && len(c.CipherSaltHex) != 64 {
		return fmt.Errorf("config: cipher enabled but salt is not a 64-character hex string (got %d chars)", len(c.CipherSaltHex))
	}

	if c.IngestQueueDepth <= 0 {
		return fmt.Errorf("config: ingest queue depth must be positive, got %d", c.IngestQueueDepth)
	}

	return nil
}

// Algo returns the configured hash backend as a hashapi.Algo.
func (c Config) Algo() hashapi.Algo {
	return hashapi.Algo(c.HashAlgo)
}

// Profile returns the configured default chunking profile.
func (c Config) Profile() chunk.Profile {
	return chunk.Profile(c.DefaultProfile)
}

// Marshal renders c as the flat key=value lines stored in a
// repository's .dits/config file (spec §6's on-disk layout).
func (c Config) Marshal() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "hash_algo=%s\n", c.HashAlgo)
	fmt.Fprintf(&buf, "default_profile=%s\n", c.DefaultProfile)
	fmt.Fprintf(&buf, "compress_chunks=%t\n", c.CompressChunks)
	fmt.Fprintf(&buf, "verify_ttl=%s\n", c.VerifyTTL)
	fmt.Fprintf(&buf, "background_verify_interval=%s\n", c.BackgroundVerifyInterval)
	fmt.Fprintf(&buf, "cipher_enabled=%t\n", c.CipherEnabled)
	fmt.Fprintf(&buf, "cipher_salt=%s\n", c.CipherSaltHex)
	fmt.Fprintf(&buf, "ingest_queue_depth=%d\n", c.IngestQueueDepth)
	return buf.Bytes()
}

// Parse reads the key=value lines produced by Marshal, starting from
// DefaultConfig() so any key absent from the file keeps its default.
// Unknown keys are ignored rather than rejected, matching the
// forward-compatible tolerance LoadFromEnv shows for bad env values.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("config: malformed line %q (expected key=value)", line)
		}

		switch key {
		case "hash_algo":
			cfg.HashAlgo = value
		case "default_profile":
			cfg.DefaultProfile = value
		case "compress_chunks":
			cfg.CompressChunks = value == "true"
		case "verify_ttl":
			d, err := time.ParseDuration(value)
			if err != nil {
				return Config{}, fmt.Errorf("config: verify_ttl: %w", err)
			}
			cfg.VerifyTTL = d
		case "background_verify_interval":
			d, err := time.ParseDuration(value)
			if err != nil {
				return Config{}, fmt.Errorf("config: background_verify_interval: %w", err)
			}
			cfg.BackgroundVerifyInterval = d
		case "cipher_enabled":
			cfg.CipherEnabled = value == "true"
		case "cipher_salt":
			cfg.CipherSaltHex = value
		case "ingest_queue_depth":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("config: ingest_queue_depth: %w", err)
			}
			cfg.IngestQueueDepth = n
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: scan: %w", err)
	}
	return cfg, nil
}

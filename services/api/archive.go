package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"fleetinv/pkg/s3"
	"fleetinv/pkg/seal"
	"fleetinv/services/inventory"
)

const archiveTimeout = 30 * time.Second

// ObjectPutter stores one object. *s3.Client implements it.
type ObjectPutter interface {
	PutObject(ctx context.Context, obj s3.Object) error
}

// Archiver keeps a zstd-compressed copy of every accepted snapshot body in
// object storage, keyed by asset uuid. The latest copy wins. With a sealer
// the compressed body is age-encrypted and signed.
type Archiver struct {
	client  ObjectPutter
	bucket  string
	sealer  *seal.Sealer
	logger  zerolog.Logger
	encoder *zstd.Encoder
}

// NewArchiver builds an Archiver writing to bucket. sealer may be nil.
func NewArchiver(client ObjectPutter, bucket string, sealer *seal.Sealer, logger zerolog.Logger) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("object client is required")
	}
	if bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	return &Archiver{client: client, bucket: bucket, sealer: sealer, logger: logger, encoder: enc}, nil
}

// Archive stores raw and logs failures. It never affects ingestion.
func (a *Archiver) Archive(ctx context.Context, snap inventory.Snapshot, raw []byte) {
	key, err := a.Put(ctx, snap.UUID, raw)
	if err != nil {
		a.logger.Warn().Err(err).Str("uuid", snap.UUID).Msg("archive snapshot")
		return
	}
	a.logger.Debug().Str("key", key).Msg("snapshot archived")
}

// Put compresses raw, seals it when configured and uploads it, returning
// the object key.
func (a *Archiver) Put(ctx context.Context, id string, raw []byte) (string, error) {
	body := a.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	key := ArchiveKey(id)
	contentType := "application/zstd"

	if a.sealer.Encrypts() {
		sealed, err := a.sealer.Seal(body)
		if err != nil {
			return "", fmt.Errorf("seal archive: %w", err)
		}
		body = sealed
		key += ".age"
		contentType = "application/age"
	}

	meta := map[string]string{}
	if a.sealer.Signs() {
		sig, err := a.sealer.Sign(body)
		if err != nil {
			return "", fmt.Errorf("sign archive: %w", err)
		}
		meta["signature"] = sig
		meta["signing-key"] = a.sealer.PublicKeyBase64()
	}

	sum := sha256.Sum256(body)

	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	err := a.client.PutObject(ctx, s3.Object{
		Bucket:      a.bucket,
		Key:         key,
		Body:        bytes.NewReader(body),
		Size:        int64(len(body)),
		SHA256:      hex.EncodeToString(sum[:]),
		ContentType: contentType,
		Metadata:    meta,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// ArchiveKey is the object key for an asset uuid.
func ArchiveKey(id string) string {
	return path.Join("snapshots", id+".json.zst")
}

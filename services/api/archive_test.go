package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"fleetinv/pkg/s3"
	"fleetinv/pkg/seal"
)

const archiveID = "6f1c2a3e-9b4d-11ee-8c90-0242ac120002"

type recordingPutter struct {
	obj  s3.Object
	body []byte
	err  error
}

func (p *recordingPutter) PutObject(_ context.Context, obj s3.Object) error {
	if p.err != nil {
		return p.err
	}
	body, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	p.obj, p.body = obj, body
	return nil
}

func decompress(t *testing.T, data []byte) string {
	t.Helper()
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd.NewReader() error = %v", err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(data, nil)
	if err != nil {
		t.Fatalf("DecodeAll() error = %v", err)
	}
	return string(plain)
}

func TestArchiverPut(t *testing.T) {
	putter := &recordingPutter{}
	archiver, err := NewArchiver(putter, "inventory-archive", nil, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}

	key, err := archiver.Put(context.Background(), archiveID, []byte(uploadBody))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if want := "snapshots/" + archiveID + ".json.zst"; key != want || putter.obj.Key != want {
		t.Fatalf("key = %q (stored %q), want %q", key, putter.obj.Key, want)
	}
	if putter.obj.Bucket != "inventory-archive" || putter.obj.ContentType != "application/zstd" {
		t.Fatalf("bucket/content type = %q/%q", putter.obj.Bucket, putter.obj.ContentType)
	}
	if putter.obj.Size != int64(len(putter.body)) {
		t.Fatalf("size = %d, body is %d bytes", putter.obj.Size, len(putter.body))
	}
	sum := sha256.Sum256(putter.body)
	if putter.obj.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum = %q, does not match body", putter.obj.SHA256)
	}
	if len(putter.obj.Metadata) != 0 {
		t.Fatalf("metadata = %v, want none without a sealer", putter.obj.Metadata)
	}

	if got := decompress(t, putter.body); got != uploadBody {
		t.Fatalf("archived body = %q, want original snapshot", got)
	}
}

func TestArchiverPutSealed(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity() error = %v", err)
	}
	sealer, err := seal.New(identity.String(), []string{identity.Recipient().String()})
	if err != nil {
		t.Fatalf("seal.New() error = %v", err)
	}

	putter := &recordingPutter{}
	archiver, err := NewArchiver(putter, "inventory-archive", sealer, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}

	key, err := archiver.Put(context.Background(), archiveID, []byte(uploadBody))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if want := "snapshots/" + archiveID + ".json.zst.age"; key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
	if err := sealer.Verify(putter.body, putter.obj.Metadata["signature"]); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}

	r, err := age.Decrypt(bytes.NewReader(putter.body), identity)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	compressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read decrypted: %v", err)
	}
	if got := decompress(t, compressed); got != uploadBody {
		t.Fatalf("archived body = %q, want original snapshot", got)
	}
}

func TestArchiverPutError(t *testing.T) {
	archiver, err := NewArchiver(&recordingPutter{err: errors.New("access denied")}, "b", nil, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}
	if _, err := archiver.Put(context.Background(), "id", []byte("{}")); err == nil {
		t.Fatal("Put() error = nil, want upload failure")
	}
}

func TestNewArchiverValidates(t *testing.T) {
	if _, err := NewArchiver(nil, "b", nil, zerolog.Nop()); err == nil {
		t.Fatal("NewArchiver(nil client) error = nil")
	}
	if _, err := NewArchiver(&recordingPutter{}, "", nil, zerolog.Nop()); err == nil {
		t.Fatal("NewArchiver(empty bucket) error = nil")
	}
}

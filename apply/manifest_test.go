package apply

import (
	"crypto/ed25519"
	"testing"
)

const sampleManifest = `
tasks:
  - title: complete
    on-init:
      funlist:
        - name: info
          args: ["starting"]
    on-resource:
      - rootfs:
          funlist:
            - name: raw_write
              args: [0]
    on-finish:
      funlist: []
file-resources:
  rootfs:
    length: 1024
    hash: "sha256:deadbeef"
`

func TestParseManifest_NoSignature(t *testing.T) {
	cfg, err := ParseManifest([]byte(sampleManifest), nil, nil)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}

	if len(cfg.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(cfg.Tasks))
	}
	if cfg.Tasks[0].Title != "complete" {
		t.Fatalf("unexpected task title: %s", cfg.Tasks[0].Title)
	}
	if len(cfg.Tasks[0].OnResource) != 1 || cfg.Tasks[0].OnResource[0].ResourceID != "rootfs" {
		t.Fatalf("on-resource section did not decode as expected: %+v", cfg.Tasks[0].OnResource)
	}

	resource, found := cfg.Resources["rootfs"]
	if !found {
		t.Fatalf("expected a rootfs file-resource")
	}
	if resource.Length != 1024 {
		t.Fatalf("unexpected resource length: %d", resource.Length)
	}
}

func TestParseManifest_SignatureVerification(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	manifestBytes := []byte(sampleManifest)
	signature := ed25519.Sign(priv, manifestBytes)

	if _, err := ParseManifest(manifestBytes, signature, pub); err != nil {
		t.Fatalf("expected a valid signature to verify: %v", err)
	}

	flipped := append([]byte(nil), signature...)
	flipped[0] ^= 0xff

	if _, err := ParseManifest(manifestBytes, flipped, pub); err == nil {
		t.Fatalf("expected a bit-flipped signature to fail verification")
	}

	if _, err := ParseManifest(manifestBytes, nil, pub); err == nil {
		t.Fatalf("expected a missing signature against a trusted key to fail")
	}
}

func TestTask_PartitionOffsetOrUnused(t *testing.T) {
	task := &Task{}
	if task.PartitionOffsetOrUnused() != -1 {
		t.Fatalf("expected -1 when require-partition1-offset is unset")
	}

	var offset int64 = 4096
	task.RequirePartition1Offset = &offset
	if task.PartitionOffsetOrUnused() != 4096 {
		t.Fatalf("expected the explicit offset to be returned")
	}
}

package integrity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/forensivid/forensivid/internal/models"
)

const (
	certificateVersion = "1.0"
	standardReference  = "ISO 27037:2012"
)

// HashPair carries the two digests recorded for a piece of evidence.
type HashPair struct {
	SHA256 string `json:"sha256"`
	SHA512 string `json:"sha512"`
}

// Certificate is a self-describing custody statement. Signature is the
// SHA-256 of the deterministic JSON serialization of every other field, so
// re-serializing and re-hashing must reproduce it exactly for the
// certificate to validate.
type Certificate struct {
	Version                string   `json:"version"`
	EvidenceID             string   `json:"evidenceId"`
	Filename               string   `json:"filename"`
	Action                 string   `json:"action"`
	Actor                  string   `json:"actor"`
	Timestamp              string   `json:"timestampUtcIso8601"`
	Hashes                 HashPair `json:"hashes"`
	StandardReference      string   `json:"standardReference"`
	CertificationStatement string   `json:"certificationStatement"`
	Signature              string   `json:"signature,omitempty"`
}

// Certify builds and signs a custody certificate for the given evidence.
func Certify(evidenceID, filename, action, actor string, hashes HashPair, now time.Time) (Certificate, error) {
	ts := now.UTC().Format(time.RFC3339)
	cert := Certificate{
		Version:           certificateVersion,
		EvidenceID:        evidenceID,
		Filename:          filename,
		Action:            action,
		Actor:             actor,
		Timestamp:         ts,
		Hashes:            hashes,
		StandardReference: standardReference,
		CertificationStatement: fmt.Sprintf(
			"This certifies that the file %q with SHA-256 hash %s was %s by %s at %s UTC.",
			filename, hashes.SHA256, action, actor, ts),
	}

	sig, err := cert.computeSignature()
	if err != nil {
		return Certificate{}, err
	}
	cert.Signature = sig
	return cert, nil
}

// Validate recomputes the signature from the certificate body and reports
// whether it matches the embedded one.
func (c Certificate) Validate() (bool, error) {
	sig, err := c.computeSignature()
	if err != nil {
		return false, err
	}
	return sig == c.Signature, nil
}

func (c Certificate) computeSignature() (string, error) {
	body := c
	body.Signature = ""
	// encoding/json writes struct fields in declaration order, which is
	// the stable ordering the signature depends on.
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("serializing certificate: %w", err)
	}
	return SHA256Hex(raw), nil
}

// EvidencePackage bundles an evidence record with its full custody chain
// for export. PackageHash is the SHA-512 of the serialized bundle.
type EvidencePackage struct {
	Version     string                 `json:"package_version"`
	CreatedAt   string                 `json:"created_at"`
	Evidence    *models.Evidence       `json:"video_information"`
	Chain       []models.CustodyRecord `json:"chain_of_custody"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	PackageHash string                 `json:"package_hash,omitempty"`
}

func BuildPackage(ev *models.Evidence, chain []models.CustodyRecord, metadata map[string]string, now time.Time) (EvidencePackage, error) {
	pkg := EvidencePackage{
		Version:   "1.0",
		CreatedAt: now.UTC().Format(time.RFC3339),
		Evidence:  ev,
		Chain:     chain,
		Metadata:  metadata,
	}

	raw, err := json.Marshal(pkg)
	if err != nil {
		return EvidencePackage{}, fmt.Errorf("serializing evidence package: %w", err)
	}
	pkg.PackageHash = SHA512Hex(raw)
	return pkg, nil
}

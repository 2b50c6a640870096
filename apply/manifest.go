package apply

import (
	"crypto/ed25519"

	"github.com/dsoprea/go-logging"
	"gopkg.in/yaml.v3"
)

// SignatureSize is the length of a detached Ed25519 signature (spec.md §4.E,
// §6): exactly 64 bytes, mirroring libsodium's crypto_sign_BYTES that the
// original tool checks the "meta.conf.ed25519" entry against.
const SignatureSize = 64

// Config is the parsed manifest tree (spec.md §3). The concrete textual
// grammar is YAML (SPEC_FULL.md §10.2); the abstract section names from
// spec.md §6 map directly onto the struct tags below.
type Config struct {
	CreationDate string                   `yaml:"meta-creation-date,omitempty"`
	Resources    map[string]*FileResource `yaml:"file-resources"`
	Tasks        []*Task                  `yaml:"tasks"`
}

// FileResource is one file-resource record (spec.md §3).
type FileResource struct {
	Length    int64   `yaml:"length"`
	Hash      string  `yaml:"hash"`
	SparseMap []int64 `yaml:"sparse-map,omitempty"`
}

// Task is one task record (spec.md §3).
type Task struct {
	Title string `yaml:"title"`

	// RequirePartition1Offset is nil when the manifest omits
	// require-partition1-offset, which spec.md §3 defines as "unused"
	// (-1). Kept as a pointer so that an explicit 0 is distinguishable
	// from "not set".
	RequirePartition1Offset *int64 `yaml:"require-partition1-offset,omitempty"`

	Requirements []Requirement   `yaml:"reqlist,omitempty"`
	OnInit       *EventSection   `yaml:"on-init,omitempty"`
	OnFinish     *EventSection   `yaml:"on-finish,omitempty"`
	OnResource   []ResourceEvent `yaml:"on-resource,omitempty"`
}

// PartitionOffsetOrUnused returns the legacy constraint value, defaulting to
// -1 ("unused") per spec.md §3.
func (t *Task) PartitionOffsetOrUnused() int64 {
	if t.RequirePartition1Offset == nil {
		return -1
	}
	return *t.RequirePartition1Offset
}

// ResourceEvent is an on-resource "<id>" section (spec.md §3). It is a slice
// element rather than a map value so that plan-pass iteration (spec.md §4.F
// step 7) visits resources in the manifest's declared order.
type ResourceEvent struct {
	ResourceID string `yaml:"resource"`
	Section    EventSection
}

// UnmarshalYAML lets a ResourceEvent be written as a mapping whose single
// key is the resource identifier and whose value is the event's action
// list, matching the abstract grammar's `on-resource "<id>" { funlist { ... } }`.
func (re *ResourceEvent) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]EventSection
	if err := value.Decode(&raw); err != nil {
		return log.Wrap(err)
	}
	for id, section := range raw {
		re.ResourceID = id
		re.Section = section
		return nil
	}
	return log.Errorf("on-resource entry had no resource id")
}

// EventSection is one of on-init/on-resource/on-finish (spec.md §3).
type EventSection struct {
	Actions []Action `yaml:"funlist"`
}

// Action is a named operation with parameters (spec.md GLOSSARY,
// "Action / funlist entry").
type Action struct {
	Name string        `yaml:"name"`
	Args []interface{} `yaml:"args,omitempty"`
}

// Requirement is a requirement-list predicate entry (spec.md §4.C). It
// shares Action's shape but is evaluated rather than visited.
type Requirement struct {
	Name string        `yaml:"name"`
	Args []interface{} `yaml:"args,omitempty"`
}

// ParseManifest verifies signature (when a trusted public key is supplied)
// and parses the manifest bytes into a Config (spec.md §4.E). signature may
// be nil (no meta.conf.ed25519 entry was present); trustedPublicKey may be
// nil (signatures are ignored, spec.md §6).
func ParseManifest(manifestBytes, signature []byte, trustedPublicKey ed25519.PublicKey) (cfg *Config, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = recoverToAppliedError(errRaw, ErrSignatureVerifyFailed)
		}
	}()

	if trustedPublicKey != nil {
		if signature == nil {
			return nil, errorf(ErrSignatureVerifyFailed, "a trusted public key was supplied but the archive carried no meta.conf.ed25519 signature")
		}

		if !ed25519.Verify(trustedPublicKey, manifestBytes, signature) {
			return nil, errorf(ErrSignatureVerifyFailed, "meta.conf signature did not verify against the trusted public key")
		}
	}

	cfg = &Config{}
	if err := yaml.Unmarshal(manifestBytes, cfg); err != nil {
		return nil, newError(ErrMissingManifest, err)
	}

	return cfg, nil
}

// recoverToAppliedError normalizes a recovered panic value into an
// *AppliedError with the given fallback kind, the way the teacher's
// `defer recover()` blocks normalize a panic into a returned error.
func recoverToAppliedError(errRaw interface{}, fallback ErrorKind) error {
	if already, ok := errRaw.(*AppliedError); ok {
		return already
	}
	if asErr, ok := errRaw.(error); ok {
		return newError(fallback, asErr)
	}
	return errorf(fallback, "%v", errRaw)
}

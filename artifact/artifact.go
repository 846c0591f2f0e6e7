// Package artifact persists fitted components as a self-describing JSON
// document and refuses to load component types the caller has not trusted.
//
// The document is an envelope around a model.State tree:
//
//	{
//	  "format": "drugpipe-artifact",
//	  "protocol": 1,
//	  "created_at": "2026-01-02T15:04:05Z",
//	  "types": ["drugpipe.pipeline.Pipeline", ...],
//	  "root": {"__type__": "drugpipe.pipeline.Pipeline", ...}
//	}
package artifact

import (
	"fmt"
	"sort"
	"time"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
	"github.com/YuminosukeSato/drugpipe/pkg/log"
	"github.com/YuminosukeSato/drugpipe/pipeline"
)

const (
	// Format identifies artifact documents.
	Format = "drugpipe-artifact"

	// Protocol is the envelope version written by Dump.
	Protocol = 1
)

// Envelope is the on-disk document.
type Envelope struct {
	Format    string       `json:"format"`
	Protocol  int          `json:"protocol"`
	CreatedAt time.Time    `json:"created_at"`
	Types     []string     `json:"types"`
	Root      *model.State `json:"root"`
}

// Dump writes c to path, replacing any previous file atomically.
func Dump(c model.Stateful, path string) error {
	root, err := c.ExportState()
	if err != nil {
		return errors.Wrapf(err, "export %s", c.TypeName())
	}
	env := Envelope{
		Format:    Format,
		Protocol:  Protocol,
		CreatedAt: time.Now().UTC(),
		Types:     root.Types(),
		Root:      root,
	}
	if err := model.WriteJSONFile(path, env); err != nil {
		return errors.Wrapf(err, "write artifact %s", path)
	}

	log.GetLoggerWithName("artifact").Info("Artifact written",
		log.PathKey, path,
		"types", len(env.Types),
	)
	return nil
}

func read(path string) (*Envelope, error) {
	var env Envelope
	if err := model.ReadJSONFile(path, &env); err != nil {
		return nil, errors.Wrapf(err, "read artifact %s", path)
	}
	if env.Format != Format {
		return nil, errors.NewValueError("artifact.Load", fmt.Sprintf("unknown format %q", env.Format))
	}
	if env.Protocol != Protocol {
		return nil, errors.NewValueError("artifact.Load", fmt.Sprintf("unsupported protocol %d", env.Protocol))
	}
	if env.Root == nil {
		return nil, errors.NewValueError("artifact.Load", "artifact has no root")
	}
	return &env, nil
}

// allTypes returns the declared types together with every type found in
// the state tree, sorted and without duplicates.
func (e *Envelope) allTypes() []string {
	seen := make(map[string]struct{})
	for _, t := range e.Types {
		seen[t] = struct{}{}
	}
	for _, t := range e.Root.Types() {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func untrusted(types []string, trusted []string) []string {
	allowed := make(map[string]struct{}, len(registry)+len(trusted))
	for _, t := range DefaultTrusted() {
		allowed[t] = struct{}{}
	}
	for _, t := range trusted {
		allowed[t] = struct{}{}
	}
	var out []string
	for _, t := range types {
		if _, ok := allowed[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// GetUntrustedTypes lists the types in the artifact at path that are not in
// the default trusted set. Nothing is constructed.
func GetUntrustedTypes(path string) ([]string, error) {
	env, err := read(path)
	if err != nil {
		return nil, err
	}
	return untrusted(env.allTypes(), nil), nil
}

// LoadComponent reads the artifact at path and builds its root component.
// Every type in the artifact must be trusted by default or listed in
// trusted, otherwise an UntrustedTypeError is returned before any component
// is built.
func LoadComponent(path string, trusted ...string) (model.Stateful, error) {
	env, err := read(path)
	if err != nil {
		return nil, err
	}
	if bad := untrusted(env.allTypes(), trusted); len(bad) > 0 {
		log.GetLoggerWithName("artifact").Warn("Refusing untrusted artifact",
			log.PathKey, path,
			log.ErrorCodeKey, log.ErrorUntrustedArtifact,
			"types", bad,
		)
		return nil, errors.NewUntrustedTypeError(bad)
	}
	return Decode(env.Root)
}

// Load reads a pipeline artifact.
func Load(path string, trusted ...string) (*pipeline.Pipeline, error) {
	c, err := LoadComponent(path, trusted...)
	if err != nil {
		return nil, err
	}
	pipe, ok := c.(*pipeline.Pipeline)
	if !ok {
		return nil, errors.NewValueError("artifact.Load", "root is "+c.TypeName()+", not a pipeline")
	}
	return pipe, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Manifest describes a build snapshot for the CI system that verifies it
type Manifest struct {
	Build   string       `json:"build"`
	Branch  string       `json:"branch"`
	Ref     string       `json:"ref"`
	Tip     string       `json:"tip"`
	Changes []ChangeInfo `json:"changes"`
	Created time.Time    `json:"created"`
}

// ManifestKey returns the object key a build's manifest is stored under
func ManifestKey(build string) string {
	return fmt.Sprintf("builds/%s.json", build)
}

// ManifestSink publishes a manifest for every created build
type ManifestSink struct {
	store ObjectStore
}

// NewManifestSink creates a sink writing to store
func NewManifestSink(store ObjectStore) *ManifestSink {
	return &ManifestSink{store: store}
}

// Name returns the sink name
func (s *ManifestSink) Name() string { return "manifest" }

// Deliver writes the manifest of a build-created event
func (s *ManifestSink) Deliver(ctx context.Context, ev Event) error {
	if ev.Type != BuildCreated {
		return nil
	}
	raw, err := json.MarshalIndent(Manifest{
		Build:   ev.Build,
		Branch:  ev.Branch,
		Ref:     ev.Ref,
		Tip:     ev.NewValue,
		Changes: ev.Changes,
		Created: ev.Time,
	}, "", "  ")
	if err != nil {
		return err
	}
	return s.store.PutObject(ctx, ManifestKey(ev.Build), raw)
}

// LoadManifest reads a build's manifest back
func LoadManifest(ctx context.Context, store ObjectStore, build string) (*Manifest, error) {
	raw, err := store.GetObject(ctx, ManifestKey(build))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", build, err)
	}
	return &m, nil
}

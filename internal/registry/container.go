package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	ociIndexMediaType  = "application/vnd.oci.image.index.v1+json"
	ociManifestType    = "application/vnd.oci.image.manifest.v1+json"
	dockerManifestType = "application/vnd.docker.distribution.manifest.v2+json"
	attestationType    = "attestation-manifest"
)

// ContainerBackend lists and inspects agents published as OCI images
// in a container registry. Metadata (the image's Labels, which carry
// the agent contract fields) is fetched by resolving the image's
// manifest — possibly a multi-arch index — down to a single platform
// manifest and then its config blob.
type ContainerBackend struct {
	registryURL string
	httpClient  *http.Client
	cache       *gocache.Cache
}

// NewContainerBackend builds a backend against a registry base URL
// (host[:port], no scheme), caching resolved manifests for ttl to
// avoid round-tripping the registry on every search.
func NewContainerBackend(registryURL string, ttl time.Duration) *ContainerBackend {
	return &ContainerBackend{
		registryURL: strings.TrimSuffix(registryURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		cache:       gocache.New(ttl, 2*ttl),
	}
}

type manifestDescriptor struct {
	MediaType   string            `json:"mediaType"`
	Digest      string            `json:"digest"`
	Annotations map[string]string `json:"annotations"`
}

type manifestList struct {
	Manifests []manifestDescriptor `json:"manifests"`
}

type imageManifest struct {
	Config manifestDescriptor `json:"config"`
}

type imageConfig struct {
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"config"`
}

// GetAgentMetadata resolves name:tag to the image's config Labels,
// following the OCI-index-then-v2-manifest fallback the registry
// protocol requires: try the OCI image index first, skip any
// attestation-manifest entries, take the first remaining platform
// manifest, then fetch its config blob.
func (b *ContainerBackend) GetAgentMetadata(name, tag string) (map[string]string, error) {
	cacheKey := "meta:" + name + ":" + tag
	if cached, ok := b.cache.Get(cacheKey); ok {
		return cached.(map[string]string), nil
	}

	labels, err := b.fetchAgentMetadata(name, tag)
	if err != nil {
		return nil, err
	}
	b.cache.Set(cacheKey, labels, gocache.DefaultExpiration)
	return labels, nil
}

func (b *ContainerBackend) fetchAgentMetadata(name, tag string) (map[string]string, error) {
	manifestURL := fmt.Sprintf("http://%s/v2/%s/manifests/%s", b.registryURL, name, tag)

	digest, err := b.resolveConfigDigest(manifestURL)
	if err != nil {
		return nil, err
	}

	blobURL := fmt.Sprintf("http://%s/v2/%s/blobs/%s", b.registryURL, name, digest)
	resp, err := b.get(blobURL, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config blob: %w", err)
	}
	defer resp.Body.Close()

	var cfg imageConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode image config: %w", err)
	}
	return cfg.Config.Labels, nil
}

// resolveConfigDigest follows the manifest chain down to a single
// platform manifest and returns its config blob digest.
func (b *ContainerBackend) resolveConfigDigest(manifestURL string) (string, error) {
	resp, err := b.get(manifestURL, ociIndexMediaType)
	var list manifestList
	isIndex := false
	if err == nil && resp.StatusCode == http.StatusOK {
		defer resp.Body.Close()
		if decodeErr := json.NewDecoder(resp.Body).Decode(&list); decodeErr == nil && len(list.Manifests) > 0 {
			isIndex = true
		}
	}

	if isIndex {
		var platformDigest string
		for _, m := range list.Manifests {
			if m.Annotations["vnd.docker.reference.type"] == attestationType {
				continue
			}
			platformDigest = m.Digest
			break
		}
		if platformDigest == "" {
			return "", fmt.Errorf("manifest index for %s has no usable platform manifest", manifestURL)
		}
		platformURL := fmt.Sprintf("%s@%s", strings.TrimSuffix(manifestURL, "/"+lastSegment(manifestURL)), platformDigest)
		return b.singleManifestConfigDigest(platformURL)
	}

	return b.singleManifestConfigDigest(manifestURL)
}

func (b *ContainerBackend) singleManifestConfigDigest(manifestURL string) (string, error) {
	resp, err := b.get(manifestURL, ociManifestType)
	if err != nil || resp.StatusCode != http.StatusOK {
		resp, err = b.get(manifestURL, dockerManifestType)
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	var m imageManifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return "", fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.Config.Digest == "" {
		return "", fmt.Errorf("manifest at %s has no config digest", manifestURL)
	}
	return m.Config.Digest, nil
}

func (b *ContainerBackend) get(url, accept string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return b.httpClient.Do(req)
}

func lastSegment(url string) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return url
	}
	return url[idx+1:]
}

// ArtifactRef returns the pullable reference for a container agent,
// the form the executor hands to its runtime client.
func (b *ContainerBackend) ArtifactRef(name, tag string) string {
	return fmt.Sprintf("%s/%s:%s", b.registryURL, name, tag)
}

// Candidates builds search candidates for every name:tag pair.
// Labels are best-effort: a fetch failure just yields a thinner
// candidate rather than aborting the whole search.
func (b *ContainerBackend) Candidates(names []NameTag) []Candidate {
	candidates := make([]Candidate, 0, len(names))
	for _, nt := range names {
		labels, _ := b.GetAgentMetadata(nt.Name, nt.Tag)
		c := Candidate{Name: nt.Name}
		if labels != nil {
			c.Class = labels["helix.type"]
			c.Description = labels["helix.task"]
			if caps := labels["helix.capabilities"]; caps != "" {
				c.Tools = strings.Split(caps, ",")
			}
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// NameTag identifies one published image.
type NameTag struct {
	Name string
	Tag  string
}

package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PublishedKey is the record key holding the url published to a peer
const PublishedKey = "ingress"

// SupportedVersionsKey advertises the per-instance protocol versions
const SupportedVersionsKey = "_supported_versions"

type urlData struct {
	URL string `json:"url" yaml:"url"`
}

// EncodeURLV2 encodes a published url for current per-app peers
func EncodeURLV2(url string) (string, error) {
	data, err := json.Marshal(urlData{URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to encode url: %w", err)
	}
	return string(data), nil
}

// EncodeURLV1 encodes a published url for legacy per-app peers
func EncodeURLV1(url string) (string, error) {
	data, err := yaml.Marshal(urlData{URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to encode url: %w", err)
	}
	return string(data), nil
}

// EncodeInstanceURLs encodes per-instance urls keyed by instance name
func EncodeInstanceURLs(urls map[string]string) (string, error) {
	doc := make(map[string]urlData, len(urls))
	for name, url := range urls {
		doc[name] = urlData{URL: url}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode urls: %w", err)
	}
	return string(data), nil
}

// EncodeSupportedVersions encodes the advertised version list
func EncodeSupportedVersions(versions ...string) (string, error) {
	data, err := yaml.Marshal(versions)
	if err != nil {
		return "", fmt.Errorf("failed to encode versions: %w", err)
	}
	return string(data), nil
}

// PublishedEntry is one decoded published url
type PublishedEntry struct {
	Name string
	URL  string
}

// DecodePublished reads back any of the published url encodings. Entries
// of a per-instance encoding are returned sorted by instance name; a
// single url is returned under name.
func DecodePublished(name, value string) ([]PublishedEntry, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	var single urlData
	if err := json.Unmarshal([]byte(value), &single); err == nil && single.URL != "" {
		return []PublishedEntry{{Name: name, URL: single.URL}}, nil
	}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(value), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode published value: %w", err)
	}
	if url, ok := doc["url"].(string); ok {
		return []PublishedEntry{{Name: name, URL: url}}, nil
	}

	var entries []PublishedEntry
	for instance, v := range doc {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if url, ok := m["url"].(string); ok && url != "" {
			entries = append(entries, PublishedEntry{Name: instance, URL: url})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
